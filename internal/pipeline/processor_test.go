package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/gpstrack/internal/geo"
	"github.com/roman-kulish/gpstrack/internal/media"
	"github.com/roman-kulish/gpstrack/internal/tabular"
	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

type fakeSource struct {
	err error
}

func (s *fakeSource) Extract(context.Context, string) (*telemetry.RawTrack, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &telemetry.RawTrack{Data: []byte{0}}, nil
}

type fakeDecoder struct {
	devices  telemetry.Devices
	err      error
	panics   bool
	selector telemetry.Selector
}

func (d *fakeDecoder) Decode(_ context.Context, _ *telemetry.RawTrack, selector telemetry.Selector) (telemetry.Devices, error) {
	d.selector = selector
	if d.panics {
		panic("corrupt payload")
	}
	return d.devices, d.err
}

type fakeWriter struct {
	err    error
	panics bool
	path   string
	points []geo.GeoPoint
}

func (w *fakeWriter) OutputPath(outputDir, videoPath string) string {
	return filepath.Join(outputDir, filepath.Base(videoPath)+".out")
}

func (w *fakeWriter) Write(path string, points []geo.GeoPoint) error {
	w.path, w.points = path, points
	if w.panics {
		panic("font cache corrupted")
	}
	return w.err
}

func gpsDevices(lons ...float64) telemetry.Devices {
	samples := make([]telemetry.Sample, len(lons))
	for i, lon := range lons {
		samples[i] = telemetry.Sample{
			CTS:   geo.Millis(int64(i) * 1000),
			Value: []float64{0, lon, 100, 2.5, 2.6},
		}
	}

	return telemetry.Devices{{
		ID:   "1",
		Name: "HERO",
		Streams: map[string]*telemetry.Stream{
			telemetry.StreamGPS5: {Key: telemetry.StreamGPS5, Samples: samples},
		},
	}}
}

func videoFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "GH010079.MP4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatalf("Failed to create video: %v", err)
	}
	return path
}

func TestProcessor_Success(t *testing.T) {
	video := videoFile(t)
	outputDir := filepath.Join(t.TempDir(), "csv")

	decoder := &fakeDecoder{devices: gpsDevices(0, 0.0005, 0.001)}
	p := NewProcessor(&fakeSource{}, decoder, tabular.NewWriter())

	res := p.Process(context.Background(), video, outputDir)
	if !res.OK() {
		t.Fatalf("Expected success, got %s (%v)", res.Status, res.Err)
	}
	if res.Stage != StageDone {
		t.Errorf("Expected stage %s, got %s", StageDone, res.Stage)
	}
	if res.Reason != "" {
		t.Errorf("Expected no reason, got %s", res.Reason)
	}
	if len(decoder.selector) != 1 || decoder.selector[0] != telemetry.StreamGPS5 {
		t.Errorf("Expected decoder to be asked for GPS5 only, got %v", decoder.selector)
	}

	expected := filepath.Join(outputDir, "GH010079_real_data.csv")
	if res.Output != expected {
		t.Errorf("Expected output %s, got %s", expected, res.Output)
	}

	data, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("Expected CSV file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("Expected header and 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[2], "1000,0.00000000,0.00050000,100,2.5,55.60") {
		t.Errorf("Unexpected second row: %s", lines[2])
	}

	if res.Track.Points != 3 {
		t.Errorf("Expected 3 track points, got %d", res.Track.Points)
	}
	if res.Extract.Accepted != 3 {
		t.Errorf("Expected 3 accepted samples, got %d", res.Extract.Accepted)
	}
}

func TestProcessor_Failures(t *testing.T) {
	writeErr := errors.New("disk full")

	testCases := []struct {
		name    string
		missing bool
		source  *fakeSource
		decoder *fakeDecoder
		writer  *fakeWriter
		status  Status
		reason  Reason
		stage   Stage
		target  error
	}{
		{
			name:    "unreadable video",
			missing: true,
			source:  &fakeSource{},
			decoder: &fakeDecoder{},
			writer:  &fakeWriter{},
			status:  StatusFailed,
			reason:  ReasonRead,
			stage:   StageAcquire,
			target:  os.ErrNotExist,
		},
		{
			name:    "missing telemetry track",
			source:  &fakeSource{err: media.ErrNoTelemetryTrack},
			decoder: &fakeDecoder{},
			writer:  &fakeWriter{},
			status:  StatusFailed,
			reason:  ReasonDecode,
			stage:   StageDecode,
			target:  media.ErrNoTelemetryTrack,
		},
		{
			name:    "decoder error",
			source:  &fakeSource{},
			decoder: &fakeDecoder{err: errors.New("bad klv")},
			writer:  &fakeWriter{},
			status:  StatusFailed,
			reason:  ReasonDecode,
			stage:   StageDecode,
		},
		{
			name:    "decoder panic",
			source:  &fakeSource{},
			decoder: &fakeDecoder{panics: true},
			writer:  &fakeWriter{},
			status:  StatusFailed,
			reason:  ReasonDecode,
			stage:   StageDecode,
		},
		{
			name:    "no samples",
			source:  &fakeSource{},
			decoder: &fakeDecoder{devices: telemetry.Devices{}},
			writer:  &fakeWriter{},
			status:  StatusNoTelemetry,
			reason:  ReasonNoTelemetry,
			stage:   StageExtract,
			target:  ErrNoTelemetry,
		},
		{
			name:    "only malformed samples",
			source:  &fakeSource{},
			decoder: &fakeDecoder{devices: gpsDevices(500, 200)},
			writer:  &fakeWriter{},
			status:  StatusNoTelemetry,
			reason:  ReasonNoTelemetry,
			stage:   StageExtract,
			target:  ErrNoTelemetry,
		},
		{
			name:    "write failure",
			source:  &fakeSource{},
			decoder: &fakeDecoder{devices: gpsDevices(0, 0.001)},
			writer:  &fakeWriter{err: writeErr},
			status:  StatusFailed,
			reason:  ReasonWrite,
			stage:   StageSerialize,
			target:  writeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			video := videoFile(t)
			if tc.missing {
				video += ".gone"
			}

			p := NewProcessor(tc.source, tc.decoder, tc.writer)
			res := p.Process(context.Background(), video, t.TempDir())

			if res.OK() {
				t.Fatal("Expected failure")
			}
			if res.Status != tc.status {
				t.Errorf("Expected status %s, got %s", tc.status, res.Status)
			}
			if res.Reason != tc.reason {
				t.Errorf("Expected reason %q, got %q", tc.reason, res.Reason)
			}
			if res.Stage != tc.stage {
				t.Errorf("Expected stage %s, got %s", tc.stage, res.Stage)
			}
			if res.Output != "" {
				t.Errorf("Expected no output, got %s", res.Output)
			}

			var stageErr *StageError
			if !errors.As(res.Err, &stageErr) || stageErr.Stage != tc.stage {
				t.Errorf("Expected StageError at %s, got %v", tc.stage, res.Err)
			}
			if tc.target != nil && !errors.Is(res.Err, tc.target) {
				t.Errorf("Expected error wrapping %v, got %v", tc.target, res.Err)
			}
		})
	}
}

func TestProcessor_DirectoryIsReadFailure(t *testing.T) {
	p := NewProcessor(&fakeSource{}, &fakeDecoder{}, &fakeWriter{})

	res := p.Process(context.Background(), t.TempDir(), t.TempDir())
	if res.Reason != ReasonRead {
		t.Errorf("Expected %q, got %q", ReasonRead, res.Reason)
	}
}

func TestProcessor_MinDistance(t *testing.T) {
	writer := &fakeWriter{}
	decoder := &fakeDecoder{devices: gpsDevices(0, 0.0005, 0.001, 0.0015, 0.002)}

	p := NewProcessor(&fakeSource{}, decoder, writer, WithMinDistance(100))
	if p.MinDistance() != 100 {
		t.Errorf("Expected min distance 100, got %f", p.MinDistance())
	}

	res := p.Process(context.Background(), videoFile(t), t.TempDir())
	if !res.OK() {
		t.Fatalf("Expected success, got %v", res.Err)
	}

	// ~55.6 m steps: every second point clears 100 m
	if len(writer.points) != 3 {
		t.Errorf("Expected 3 points, got %d", len(writer.points))
	}
}

func TestProcessor_RendererFailureIsNotFatal(t *testing.T) {
	tests := []struct {
		name     string
		renderer *fakeWriter
	}{
		{name: "error", renderer: &fakeWriter{err: errors.New("no font")}},
		{name: "panic", renderer: &fakeWriter{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			decoder := &fakeDecoder{devices: gpsDevices(0, 0.001)}

			p := NewProcessor(&fakeSource{}, decoder, writer, WithRenderer(tt.renderer))
			res := p.Process(context.Background(), videoFile(t), t.TempDir())

			if !res.OK() {
				t.Fatalf("Expected success, got %s %q: %v", res.Status, res.Reason, res.Err)
			}
			if res.Stage != StageDone {
				t.Errorf("Expected stage %s, got %s", StageDone, res.Stage)
			}
			if res.Reason != "" || res.Err != nil {
				t.Errorf("Expected no failure reason, got %q: %v", res.Reason, res.Err)
			}
			if res.Output != writer.path {
				t.Errorf("Expected output %s, got %s", writer.path, res.Output)
			}
			if res.Preview != "" {
				t.Errorf("Expected no preview, got %s", res.Preview)
			}
			if len(tt.renderer.points) != 2 {
				t.Errorf("Expected renderer to receive 2 points, got %d", len(tt.renderer.points))
			}
		})
	}
}

func TestProcessor_Renderer(t *testing.T) {
	renderer := &fakeWriter{}
	decoder := &fakeDecoder{devices: gpsDevices(0, 0.001)}

	p := NewProcessor(&fakeSource{}, decoder, &fakeWriter{}, WithRenderer(renderer))
	res := p.Process(context.Background(), videoFile(t), t.TempDir())

	if res.Preview == "" || res.Preview != renderer.path {
		t.Errorf("Expected preview %s, got %s", renderer.path, res.Preview)
	}
}

type blockingSource struct{}

func (blockingSource) Extract(ctx context.Context, _ string) (*telemetry.RawTrack, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessor_Timeout(t *testing.T) {
	p := NewProcessor(blockingSource{}, &fakeDecoder{}, &fakeWriter{}, WithTimeout(10*time.Millisecond))

	res := p.Process(context.Background(), videoFile(t), t.TempDir())
	if res.Reason != ReasonDecode {
		t.Errorf("Expected %q, got %q", ReasonDecode, res.Reason)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", res.Err)
	}
}
