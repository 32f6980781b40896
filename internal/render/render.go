package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/gpstrack/internal/geo"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	// OutputSuffix is appended to the video base name to form the preview file name
	OutputSuffix = "_track"

	defaultWidth    = 1024
	defaultHeight   = 768
	defaultFontSize = 10.0

	defaultTopBorder    = 30
	defaultLeftBorder   = 30
	defaultBottomBorder = 60
	defaultRightBorder  = 30

	lineWidth    = 2
	markerRadius = 5
)

// ErrEmptyTrack is returned when there is nothing to draw
var ErrEmptyTrack = errors.New("empty track")

// ImageFormat is the encoding of the rendered preview
type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// ValidFormat reports whether format is a supported image encoding
func ValidFormat(format ImageFormat) bool {
	_, ok := validImageFormats[format]
	return ok
}

// BorderConfig defines the sizes of white space around the track
type BorderConfig struct {
	Top    int
	Left   int
	Bottom int // Space for the scale bar and information line
	Right  int
}

// Config holds the preview configuration
type Config struct {
	Width      int // Width of the drawing area in pixels
	Height     int // Height of the drawing area in pixels
	Format     ImageFormat
	FontSize   float64
	ColorTheme ColorTheme

	BorderConfig BorderConfig
}

// Renderer draws a filtered track as a top-down preview image. Segments are
// coloured by the speed at their end point.
type Renderer struct {
	config Config
}

// NewRenderer creates a new track renderer with the given configuration
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.Format == "" {
		config.Format = ImagePNG
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	if config.Width < 0 || config.Height < 0 {
		return nil, fmt.Errorf("invalid image size: %dx%d", config.Width, config.Height)
	}
	if !ValidFormat(config.Format) {
		return nil, fmt.Errorf("invalid image format: %s", config.Format)
	}
	if config.ColorTheme != "" && !ValidTheme(config.ColorTheme) {
		return nil, fmt.Errorf("invalid color theme: %s", config.ColorTheme)
	}

	return &Renderer{config: config}, nil
}

// OutputPath returns the preview file for a video, derived from its base name
func (r *Renderer) OutputPath(outputDir, videoPath string) string {
	base := filepath.Base(videoPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+OutputSuffix+"."+string(r.config.Format))
}

// Write renders the points and encodes the image at path
func (r *Renderer) Write(path string, points []geo.GeoPoint) (err error) {
	img, err := r.Render(points)
	if err != nil {
		return fmt.Errorf("rendering track: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing image file: %w", cErr)
		}
	}()

	switch r.config.Format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	return nil
}

// Render creates an image of the track with a scale bar and summary line
func (r *Renderer) Render(points []geo.GeoPoint) (*image.RGBA, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}

	b := r.config.BorderConfig
	fullWidth := r.config.Width + b.Left + b.Right
	fullHeight := r.config.Height + b.Top + b.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
	proj := newProjection(points, area)

	colorMap := NewColorMapper(r.config.ColorTheme, speedBounds(points))

	prev := proj.point(points[0])
	for _, p := range points[1:] {
		cur := proj.point(p)
		drawLine(img, prev, cur, colorMap.GetColor(p.Speed))
		prev = cur
	}

	drawMarker(img, proj.point(points[0]), color.RGBA{G: 160, A: 0xff})
	drawMarker(img, proj.point(points[len(points)-1]), color.RGBA{R: 200, A: 0xff})

	ann, err := newAnnotator(r.config.FontSize, b)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, points, proj); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func speedBounds(points []geo.GeoPoint) SpeedBounds {
	bounds := SpeedBounds{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, p := range points {
		bounds.Min = math.Min(bounds.Min, p.Speed)
		bounds.Max = math.Max(bounds.Max, p.Speed)
	}
	return bounds
}

// projection maps coordinates onto the drawing area using a local
// equirectangular approximation centred on the track
type projection struct {
	lat0, lon0  float64
	cosLat      float64
	scale       float64 // pixels per meter
	area        image.Rectangle
	offsetX     float64
	offsetY     float64
	widthMeters float64
}

func newProjection(points []geo.GeoPoint, area image.Rectangle) *projection {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minLat, maxLat = math.Min(minLat, p.Lat), math.Max(maxLat, p.Lat)
		minLon, maxLon = math.Min(minLon, p.Lon), math.Max(maxLon, p.Lon)
	}

	pr := &projection{
		lat0:   (minLat + maxLat) / 2,
		lon0:   (minLon + maxLon) / 2,
		area:   area,
		cosLat: math.Cos((minLat + maxLat) / 2 * math.Pi / 180),
	}

	spanX := pr.meters(maxLon-minLon) * pr.cosLat
	spanY := pr.meters(maxLat - minLat)

	// a single location still gets a sensible scale
	spanX, spanY = math.Max(spanX, 1), math.Max(spanY, 1)

	pr.scale = math.Min(float64(area.Dx())/spanX, float64(area.Dy())/spanY)
	pr.offsetX = float64(area.Min.X) + float64(area.Dx())/2
	pr.offsetY = float64(area.Min.Y) + float64(area.Dy())/2
	pr.widthMeters = float64(area.Dx()) / pr.scale

	return pr
}

func (pr *projection) meters(deg float64) float64 {
	return deg * math.Pi / 180 * geo.EarthRadius
}

func (pr *projection) point(p geo.GeoPoint) image.Point {
	x := pr.meters(p.Lon-pr.lon0) * pr.cosLat * pr.scale
	y := pr.meters(p.Lat-pr.lat0) * pr.scale

	return image.Pt(int(math.Round(pr.offsetX+x)), int(math.Round(pr.offsetY-y)))
}

func drawLine(img *image.RGBA, from, to image.Point, c color.Color) {
	dx, dy := to.X-from.X, to.Y-from.Y
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		plot(img, from, c)
		return
	}

	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		pt := image.Pt(
			from.X+int(math.Round(float64(dx)*t)),
			from.Y+int(math.Round(float64(dy)*t)),
		)
		plot(img, pt, c)
	}
}

func plot(img *image.RGBA, pt image.Point, c color.Color) {
	for x := 0; x < lineWidth; x++ {
		for y := 0; y < lineWidth; y++ {
			img.Set(pt.X+x, pt.Y+y, c)
		}
	}
}

func drawMarker(img *image.RGBA, center image.Point, c color.Color) {
	for x := -markerRadius; x <= markerRadius; x++ {
		for y := -markerRadius; y <= markerRadius; y++ {
			if x*x+y*y <= markerRadius*markerRadius {
				img.Set(center.X+x, center.Y+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
