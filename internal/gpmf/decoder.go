package gpmf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

const (
	keyDevice     = "DEVC"
	keyDeviceID   = "DVID"
	keyDeviceName = "DVNM"
	keyStream     = "STRM"
	keyStreamName = "STNM"
	keyScale      = "SCAL"
	keyUnits      = "UNIT"
	keySIUnits    = "SIUN"
	keyGPSTime    = "GPSU"
)

var (
	// ErrEmptyTrack is returned when there is no data to decode
	ErrEmptyTrack = errors.New("empty telemetry track")

	// metadataKeys are numeric stream entries that describe samples rather than carry them
	metadataKeys = map[string]struct{}{
		"TSMP": {}, "STMP": {}, "GPSF": {}, "GPSP": {}, "TMPC": {},
		"TICK": {}, "TOCK": {}, "EMPT": {}, "ORIN": {}, "ORIO": {}, "MTRX": {},
	}
)

// WithLogger sets the logger for the decoder
func WithLogger(logger *slog.Logger) func(*Decoder) {
	return func(d *Decoder) {
		d.logger = logger.With(slog.String("component", "gpmf"))
	}
}

// Decoder decodes GPMF telemetry payloads into device streams. Only streams
// requested by the selector are decoded, everything else is skipped.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a new Decoder with a discard logger
func NewDecoder(options ...func(*Decoder)) *Decoder {
	d := Decoder{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Decode parses every payload of the raw track. Payloads that cannot be parsed
// are skipped, and an error is returned only if none of them could be.
func (d *Decoder) Decode(ctx context.Context, raw *telemetry.RawTrack, selector telemetry.Selector) (telemetry.Devices, error) {
	if raw == nil || len(raw.Data) == 0 {
		return nil, ErrEmptyTrack
	}

	payloads := raw.Payloads
	if len(payloads) == 0 {
		payloads = []telemetry.Payload{{Size: len(raw.Data), Duration: raw.Duration}}
	}

	acc := newAccumulator(selector)

	var errs []error
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.Offset < 0 || p.Size < 0 || p.Offset+p.Size > len(raw.Data) {
			errs = append(errs, fmt.Errorf("payload %d: %w: out of bounds", i, ErrMalformed))
			continue
		}

		if err := acc.payload(raw.Data[p.Offset:p.Offset+p.Size], p); err != nil {
			d.logger.Warn(fmt.Sprintf("skipping payload: %s", err.Error()), slog.Int("payload", i))
			errs = append(errs, fmt.Errorf("payload %d: %w", i, err))
			continue
		}
	}

	if len(errs) == len(payloads) {
		return nil, fmt.Errorf("decoding telemetry: %w", errors.Join(errs...))
	}

	return acc.devices, nil
}

// accumulator collects streams of the same device across payloads
type accumulator struct {
	selector telemetry.Selector
	devices  telemetry.Devices
	index    map[string]*telemetry.Device
}

func newAccumulator(selector telemetry.Selector) *accumulator {
	return &accumulator{
		selector: selector,
		index:    make(map[string]*telemetry.Device),
	}
}

func (a *accumulator) payload(b []byte, p telemetry.Payload) error {
	entries, err := parseEntries(b)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrMalformed)
	}

	for _, e := range entries {
		if e.Key != keyDevice {
			continue
		}
		if err = a.device(e, p); err != nil {
			return err
		}
	}

	return nil
}

func (a *accumulator) device(devc entry, p telemetry.Payload) error {
	children, err := devc.Children()
	if err != nil {
		return err
	}

	id, name := "", ""
	for _, c := range children {
		switch c.Key {
		case keyDeviceID:
			id = c.Identifier()
		case keyDeviceName:
			name = c.String()
		}
	}
	if id == "" {
		id = name
	}

	for _, c := range children {
		if c.Key != keyStream {
			continue
		}

		stream, err := a.stream(c, p)
		if err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		if stream == nil {
			continue
		}

		device := a.deviceFor(id, name)
		if existing, ok := device.Streams[stream.Key]; ok {
			existing.Samples = append(existing.Samples, stream.Samples...)
		} else {
			device.Streams[stream.Key] = stream
		}
	}

	return nil
}

func (a *accumulator) deviceFor(id, name string) *telemetry.Device {
	if d, ok := a.index[id]; ok {
		return d
	}

	d := &telemetry.Device{
		ID:      id,
		Name:    name,
		Streams: make(map[string]*telemetry.Stream),
	}
	a.index[id] = d
	a.devices = append(a.devices, d)
	return d
}

// stream decodes a STRM container. Sticky metadata (SCAL, GPSU, names, units)
// precedes the sample entry it applies to. Returns nil if the stream is not selected.
func (a *accumulator) stream(strm entry, p telemetry.Payload) (*telemetry.Stream, error) {
	children, err := strm.Children()
	if err != nil {
		return nil, err
	}

	var (
		name   string
		units  []string
		scale  []float64
		date   *time.Time
		result *telemetry.Stream
	)

	for _, c := range children {
		switch c.Key {
		case keyStreamName:
			name = c.String()

		case keySIUnits, keyUnits:
			if units == nil {
				units = c.Strings()
			}

		case keyScale:
			if scale, err = c.Flat(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", keyScale, err)
			}

		case keyGPSTime:
			if t, err := c.Time(); err == nil {
				date = &t
			}

		default:
			if c.Nested() || c.Repeat == 0 || !a.selector.Has(c.Key) {
				continue
			}
			if _, ok := metadataKeys[c.Key]; ok {
				continue
			}
			if _, ok := elementSizes[c.Type]; !ok || c.Type == typeChar || c.Type == typeFourCC {
				continue
			}

			values, err := c.Values()
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", c.Key, err)
			}

			result = &telemetry.Stream{
				Key:     c.Key,
				Name:    name,
				Units:   units,
				Samples: toSamples(values, scale, date, p),
			}
		}
	}

	return result, nil
}

// toSamples applies the scale and spreads the payload time range evenly across samples
func toSamples(values [][]float64, scale []float64, date *time.Time, p telemetry.Payload) []telemetry.Sample {
	samples := make([]telemetry.Sample, len(values))

	var step time.Duration
	if len(values) > 0 {
		step = p.Duration / time.Duration(len(values))
	}

	for i, v := range values {
		for j := range v {
			v[j] = applyScale(v[j], scale, j)
		}

		offset := time.Duration(i) * step

		cts := (p.Start + offset).Milliseconds()
		samples[i] = telemetry.Sample{
			CTS:   &cts,
			Value: v,
		}

		if date != nil {
			d := date.Add(offset)
			samples[i].Date = &d
		}
	}

	return samples
}

func applyScale(v float64, scale []float64, component int) float64 {
	var s float64
	switch {
	case len(scale) == 0:
		return v
	case component < len(scale):
		s = scale[component]
	default:
		s = scale[0]
	}

	if s == 0 {
		return v
	}
	return v / s
}
