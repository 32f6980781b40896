package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	codecTypeData = "data"
	codecTagGPMD  = "gpmd"
)

// telemetryHandlers are handler names GoPro cameras give the metadata track
var telemetryHandlers = []string{"GoPro MET", "GPMD"}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index          int               `json:"index"`
	CodecName      string            `json:"codec_name"`
	CodecType      string            `json:"codec_type"`
	CodecTagString string            `json:"codec_tag_string"`
	Duration       string            `json:"duration"`
	Tags           map[string]string `json:"tags"`
}

type probeFormat struct {
	Duration string            `json:"duration"`
	Size     string            `json:"size"`
	Tags     map[string]string `json:"tags"`
}

type packetOutput struct {
	Packets []probePacket `json:"packets"`
}

type probePacket struct {
	PTSTime      string `json:"pts_time"`
	DurationTime string `json:"duration_time"`
	Size         string `json:"size"`
}

// Stream is a stream of the container as reported by ffprobe
type Stream struct {
	Index     int
	CodecType string
	CodecTag  string
	Handler   string
}

// IsTelemetry reports whether the stream is a GPMF metadata track
func (s Stream) IsTelemetry() bool {
	if s.CodecType != codecTypeData {
		return false
	}
	if strings.EqualFold(s.CodecTag, codecTagGPMD) {
		return true
	}
	for _, h := range telemetryHandlers {
		if strings.Contains(s.Handler, h) {
			return true
		}
	}
	return false
}

// Container describes the streams and format of a video file
type Container struct {
	Streams   []Stream
	Duration  time.Duration
	Size      int64
	CreatedAt *time.Time
}

// TelemetryStream picks the GPMF track. When no track is tagged as such, the
// first data stream is returned and exact is false.
func (c *Container) TelemetryStream() (stream Stream, exact bool, err error) {
	var fallback *Stream
	for i, s := range c.Streams {
		if s.IsTelemetry() {
			return s, true, nil
		}
		if s.CodecType == codecTypeData && fallback == nil {
			fallback = &c.Streams[i]
		}
	}

	if fallback != nil {
		return *fallback, false, nil
	}
	return Stream{}, false, ErrNoTelemetryTrack
}

func (s *Source) probe(ctx context.Context, videoPath string) (*Container, error) {
	out, err := s.run(ctx, s.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		videoPath,
	)
	if err != nil {
		return nil, fmt.Errorf("probing container: %w", err)
	}

	return parseProbe(out)
}

func parseProbe(out []byte) (*Container, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	c := Container{
		Duration: parseSeconds(p.Format.Duration),
	}

	if size, err := strconv.ParseInt(p.Format.Size, 10, 64); err == nil {
		c.Size = size
	}

	if v, ok := p.Format.Tags["creation_time"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			t = t.UTC()
			c.CreatedAt = &t
		}
	}

	for _, ps := range p.Streams {
		c.Streams = append(c.Streams, Stream{
			Index:     ps.Index,
			CodecType: ps.CodecType,
			CodecTag:  ps.CodecTagString,
			Handler:   ps.Tags["handler_name"],
		})
	}

	return &c, nil
}

func (s *Source) packets(ctx context.Context, videoPath string, index int) ([]probePacket, error) {
	out, err := s.run(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", strconv.Itoa(index),
		"-show_entries", "packet=pts_time,duration_time,size",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return nil, fmt.Errorf("probing packets: %w", err)
	}

	var p packetOutput
	if err = json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("parsing packets: %w", err)
	}

	return p.Packets, nil
}

// parseSeconds converts an ffprobe decimal seconds value, returning 0 if unset
func parseSeconds(v string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}
