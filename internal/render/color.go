package render

import (
	"image/color"
	"math"
)

// ColorTheme is a predefined scheme used to colour track segments by speed
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ValidTheme reports whether theme is one of the predefined themes
func ValidTheme(theme ColorTheme) bool {
	_, ok := validThemes[theme]
	return ok
}

// SpeedBounds is the speed range mapped onto the colour scale, in m/s
type SpeedBounds struct {
	Min float64
	Max float64
}

// ColorMapper maps a speed onto a pre-computed colour scale
type ColorMapper struct {
	colorMap      []color.Color
	theme         func(float64) color.Color
	size          int
	speedPerIndex float64
	bounds        SpeedBounds
}

// NewColorMapper creates a colour mapper with the default scale size
func NewColorMapper(theme ColorTheme, bounds SpeedBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		theme:    getColorTheme(theme),
		size:     DefaultColorMapSize,
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds updates the speed range and rebuilds the colour scale
func (cm *ColorMapper) UpdateBounds(bounds SpeedBounds) {
	cm.bounds = bounds
	cm.speedPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
}

// GetColor returns the colour for the given speed. A degenerate range maps
// every speed onto the middle of the scale.
func (cm *ColorMapper) GetColor(speed float64) color.Color {
	if cm.speedPerIndex <= 0 || math.IsNaN(speed) {
		return cm.colorMap[cm.size/2]
	}

	speed = math.Max(cm.bounds.Min, math.Min(speed, cm.bounds.Max))
	index := int((speed - cm.bounds.Min) / cm.speedPerIndex)

	if index < 0 {
		index = 0
	} else if index >= cm.size {
		index = cm.size - 1
	}
	return cm.colorMap[index]
}

// HSV represents a color in HSV color space
type HSV struct {
	H float64 // Hue [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value [0-1]
}

// RGB converts HSV color space to RGB
func (hsv HSV) RGB() color.Color {
	h, s, v := hsv.H, hsv.S, math.Max(0, math.Min(1, hsv.V))

	if s <= 0.0 {
		rgb := uint8(v * 255)
		return color.RGBA{R: rgb, G: rgb, B: rgb, A: 0xff}
	}

	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 60
	i := math.Floor(h)
	f := h - i

	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64

	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

// speedToColorEnhanced separates the slow end of the range, where most
// walking and cycling tracks spend their time
func speedToColorEnhanced(normalized float64) color.Color {
	speed := math.Max(0, math.Min(1, normalized))
	enhanced := math.Pow(speed, 0.7)

	var hsv HSV

	switch {
	case speed < 0.25:
		hsv = HSV{H: 240, S: 1.0, V: 0.4 + enhanced*2}
	case speed < 0.5:
		hsv = HSV{H: 240 - ((speed - 0.25) * 240), S: 1.0, V: enhanced * 1.5}
	case speed < 0.75:
		p := (speed - 0.5) * 4
		hsv = HSV{H: 180 - (p * 120), S: 1.0, V: math.Min(1.0, enhanced*1.5)}
	default:
		p := (speed - 0.75) * 4
		hsv = HSV{H: 60 - (p * 60), S: 1.0, V: 1.0}
	}

	return hsv.RGB()
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme: // Blue -> Red
		return func(speed float64) color.Color {
			return HSV{
				H: 240 - (speed * 240),
				S: 0.9 + (speed * 0.1),
				V: 0.5 + math.Pow(speed, 0.7)*0.5,
			}.RGB()
		}

	case GrayscaleTheme: // Dark grey -> Black
		return func(speed float64) color.Color {
			v := (1 - math.Pow(speed, 0.7)) * 160
			return color.RGBA{R: uint8(v), G: uint8(v), B: uint8(v), A: 0xff}
		}

	case JungleTheme: // Dark Green -> Yellow
		return func(speed float64) color.Color {
			return HSV{
				H: 120 - (speed * 60),
				S: 1.0,
				V: 0.3 + (math.Pow(speed, 0.6) * 0.7),
			}.RGB()
		}

	case ThermalTheme: // Black -> Red -> Yellow
		return func(speed float64) color.Color {
			if speed < 0.5 {
				p := speed * 2
				return color.RGBA{R: uint8(p * 255), A: 0xff}
			}
			p := (speed - 0.5) * 2
			return color.RGBA{R: 255, G: uint8(p * 200), A: 0xff}
		}

	case MarineTheme: // Deep Blue -> Cyan
		return func(speed float64) color.Color {
			return HSV{
				H: 240 - (speed * 60),
				S: 1.0 - (speed * 0.5),
				V: 0.3 + (math.Pow(speed, 0.6) * 0.7),
			}.RGB()
		}

	default:
		return speedToColorEnhanced
	}
}
