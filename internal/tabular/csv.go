package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roman-kulish/gpstrack/internal/geo"
)

const (
	// OutputSuffix is appended to the video base name to form the output file name
	OutputSuffix = "_real_data.csv"

	distancePrecision = 2
)

// Header is the fixed column contract of the output file
var Header = []string{
	"Timestamp",
	"Latitude",
	"Longitude",
	"Altitude (m)",
	"Speed (m/s)",
	"DistanceFromPrevious (m)",
}

// Row renders a point according to the column contract. An unknown timestamp
// is written as an empty cell.
func Row(p geo.GeoPoint) []string {
	var ts string
	if p.HasTime() {
		ts = strconv.FormatInt(*p.Time, 10)
	}

	return []string{
		ts,
		strconv.FormatFloat(p.Lat, 'f', geo.CoordinatePrecision, 64),
		strconv.FormatFloat(p.Lon, 'f', geo.CoordinatePrecision, 64),
		strconv.FormatFloat(p.Alt, 'f', -1, 64),
		strconv.FormatFloat(p.Speed, 'f', -1, 64),
		strconv.FormatFloat(geo.Round(p.DistanceFromPrevious, distancePrecision), 'f', distancePrecision, 64),
	}
}

// Encode writes the header and one row per point
func Encode(w io.Writer, points []geo.GeoPoint) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, p := range points {
		if err := cw.Write(Row(p)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Writer writes one CSV file per video
type Writer struct{}

// NewWriter creates a new Writer
func NewWriter() *Writer {
	return &Writer{}
}

// OutputPath returns the output file for a video, derived from its base name
func (w *Writer) OutputPath(outputDir, videoPath string) string {
	base := filepath.Base(videoPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+OutputSuffix)
}

// Write stores the points at path. The file is written under a unique temporary
// name in the same directory and renamed into place, so a failed write never
// leaves a partial file behind.
func (w *Writer) Write(path string, points []geo.GeoPoint) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = Encode(bw, points); err == nil {
		err = bw.Flush()
	}
	if cErr := f.Close(); cErr != nil {
		err = errors.Join(err, cErr)
	}
	if err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving output file into place: %w", err)
	}

	return nil
}
