package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "hevc", "tags": {"handler_name": "GoPro H.265"}},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"handler_name": "GoPro AAC"}},
    {"index": 2, "codec_type": "data", "codec_tag_string": "tmcd", "tags": {"handler_name": "GoPro TCD"}},
    {"index": 3, "codec_type": "data", "codec_tag_string": "gpmd", "tags": {"handler_name": "GoPro MET"}}
  ],
  "format": {"duration": "2.002000", "size": "1048576", "tags": {"creation_time": "2024-05-01T12:00:00.000000Z"}}
}`

const packetsJSON = `{
  "packets": [
    {"pts_time": "0.000000", "duration_time": "1.001000", "size": "6"},
    {"pts_time": "1.001000", "duration_time": "1.001000", "size": "4"}
  ]
}`

type fakeRunner struct {
	probe   string
	packets string
	track   []byte
	calls   [][]string
	tmpPath string
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	switch name {
	case "ffprobe":
		if slices.Contains(args, "-select_streams") {
			return []byte(f.packets), nil
		}
		return []byte(f.probe), nil

	case "ffmpeg":
		f.tmpPath = args[len(args)-1]
		if f.track == nil {
			return nil, errors.New("ffmpeg exited with error: exit status 1")
		}
		return nil, os.WriteFile(f.tmpPath, f.track, 0o644)
	}

	return nil, errors.New("unexpected command")
}

func newTestSource(t *testing.T, r *fakeRunner) *Source {
	t.Helper()

	s, err := NewSource(
		WithFFmpeg("ffmpeg"),
		WithFFprobe("ffprobe"),
		WithTempDir(t.TempDir()),
		WithRunner(r.run),
	)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	return s
}

func TestSource_Extract(t *testing.T) {
	r := &fakeRunner{probe: probeJSON, packets: packetsJSON, track: []byte("abcdefghij")}
	s := newTestSource(t, r)

	raw, err := s.Extract(context.Background(), "/videos/GH010079.MP4")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if string(raw.Data) != "abcdefghij" {
		t.Errorf("Unexpected track data %q", raw.Data)
	}
	if raw.Duration != 2002*time.Millisecond {
		t.Errorf("Expected duration 2.002s, got %v", raw.Duration)
	}
	if raw.CreatedAt == nil || !raw.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected creation time %v", raw.CreatedAt)
	}

	if len(raw.Payloads) != 2 {
		t.Fatalf("Expected 2 payloads, got %d", len(raw.Payloads))
	}
	if p := raw.Payloads[1]; p.Offset != 6 || p.Size != 4 || p.Start != 1001*time.Millisecond {
		t.Errorf("Unexpected second payload %+v", p)
	}

	ffmpeg := r.calls[1]
	if !slices.Contains(ffmpeg, "0:3") {
		t.Errorf("Expected the GPMF stream to be mapped, got %v", ffmpeg)
	}
	if !strings.HasPrefix(filepath.Base(r.tmpPath), "gpstrack-") {
		t.Errorf("Unexpected temporary file name %s", r.tmpPath)
	}
	if _, err = os.Stat(r.tmpPath); !os.IsNotExist(err) {
		t.Errorf("Expected temporary file to be removed, got %v", err)
	}
}

func TestSource_UniqueTemporaryFiles(t *testing.T) {
	r := &fakeRunner{probe: probeJSON, packets: packetsJSON, track: []byte("abcdefghij")}
	s := newTestSource(t, r)

	var paths []string
	for i := 0; i < 3; i++ {
		if _, err := s.Extract(context.Background(), "/videos/a.mp4"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		paths = append(paths, r.tmpPath)
	}

	slices.Sort(paths)
	if len(slices.Compact(paths)) != 3 {
		t.Errorf("Expected unique temporary files, got %v", paths)
	}
}

func TestSource_NoDataStream(t *testing.T) {
	r := &fakeRunner{probe: `{"streams": [{"index": 0, "codec_type": "video"}], "format": {}}`}
	s := newTestSource(t, r)

	if _, err := s.Extract(context.Background(), "/videos/plain.mp4"); !errors.Is(err, ErrNoTelemetryTrack) {
		t.Errorf("Expected ErrNoTelemetryTrack, got %v", err)
	}
}

func TestSource_FFmpegFailure(t *testing.T) {
	r := &fakeRunner{probe: probeJSON, packets: packetsJSON}
	s := newTestSource(t, r)

	if _, err := s.Extract(context.Background(), "/videos/broken.mp4"); err == nil {
		t.Error("Expected error when ffmpeg fails")
	}
}

func TestSource_MismatchedPacketSizes(t *testing.T) {
	r := &fakeRunner{probe: probeJSON, packets: packetsJSON, track: []byte("abc")}
	s := newTestSource(t, r)

	raw, err := s.Extract(context.Background(), "/videos/a.mp4")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if raw.Payloads != nil {
		t.Errorf("Expected timing to be dropped, got %v", raw.Payloads)
	}
}

func TestContainer_TelemetryStream(t *testing.T) {
	testCases := []struct {
		name    string
		streams []Stream
		index   int
		exact   bool
		err     error
	}{
		{"handler name", []Stream{{Index: 0, CodecType: "video"}, {Index: 1, CodecType: "data", Handler: "\tGoPro MET"}}, 1, true, nil},
		{"codec tag", []Stream{{Index: 4, CodecType: "data", CodecTag: "GPMD"}}, 4, true, nil},
		{"fallback", []Stream{{Index: 2, CodecType: "data", Handler: "GoPro TCD"}, {Index: 3, CodecType: "data"}}, 2, false, nil},
		{"none", []Stream{{Index: 0, CodecType: "video"}}, 0, false, ErrNoTelemetryTrack},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Container{Streams: tc.streams}
			s, exact, err := c.TelemetryStream()
			if !errors.Is(err, tc.err) {
				t.Fatalf("Expected error %v, got %v", tc.err, err)
			}
			if err == nil && (s.Index != tc.index || exact != tc.exact) {
				t.Errorf("Expected stream %d (exact %v), got %d (exact %v)", tc.index, tc.exact, s.Index, exact)
			}
		})
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := FindRuntime(RuntimeFFprobe); err != nil {
		t.Skip("ffprobe not available")
	}

	_, err := execRunner(context.Background(), RuntimeFFprobe, "-v", "error", filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Error("Expected error probing a missing file")
	}
}
