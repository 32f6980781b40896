package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/gpstrack/internal/geo"
	"github.com/roman-kulish/gpstrack/internal/track"
)

const (
	dpi             = 120.0
	tickMarkHeight  = 5
	scaleBarPortion = 0.25 // Preferred scale bar length relative to the drawing width
)

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	borders  BorderConfig
}

func newAnnotator(fontSize float64, borders BorderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		borders: borders,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, points []geo.GeoPoint, proj *projection) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawScaleBar(img, proj); err != nil {
		return fmt.Errorf("drawing scale bar: %w", err)
	}
	if err := a.drawInfoBar(img, points); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) drawScaleBar(img *image.RGBA, proj *projection) error {
	meters := niceDistance(proj.widthMeters * scaleBarPortion)
	length := int(math.Round(meters * proj.scale))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	x0 := a.borders.Left
	y := img.Bounds().Max.Y - a.borders.Bottom + fontHeight/2 + tickMarkHeight

	for x := x0; x <= x0+length; x++ {
		img.Set(x, y, color.Black)
	}
	for dy := 0; dy < tickMarkHeight; dy++ {
		img.Set(x0, y-dy, color.Black)
		img.Set(x0+length, y-dy, color.Black)
	}

	pt := freetype.Pt(x0+length+5, y+fontHeight/2-metrics.Descent.Round())
	if _, err := a.context.DrawString(formatDistance(meters), pt); err != nil {
		return fmt.Errorf("drawing scale label: %w", err)
	}

	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, points []geo.GeoPoint) error {
	stats := track.ComputeStats(points)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Points: %d", stats.Points))
	sb.WriteString("; ")
	sb.WriteString("Distance: " + formatDistance(stats.TotalDistance))
	if ms, ok := stats.Duration(); ok {
		sb.WriteString("; ")
		sb.WriteString("Duration: " + (time.Duration(ms) * time.Millisecond).String())
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 5

	pt := freetype.Pt(a.borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// niceDistance rounds a distance down to 1, 2 or 5 times a power of ten
func niceDistance(meters float64) float64 {
	if meters <= 1 {
		return 1
	}

	magnitude := math.Pow(10, math.Floor(math.Log10(meters)))
	for _, step := range []float64{5, 2, 1} {
		if step*magnitude <= meters {
			return step * magnitude
		}
	}
	return magnitude
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	value, prefix := humanize.ComputeSI(meters)
	return fmt.Sprintf("%.1f %sm", value, prefix)
}
