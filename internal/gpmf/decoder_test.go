package gpmf

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/roman-kulish/gpstrack/internal/telemetry"
)

// gpsPayload builds one DEVC payload with a GPS5 stream of the given raw samples
func gpsPayload(deviceID uint32, gpsu string, samples ...int32) []byte {
	strm := nested("STRM",
		chars("STNM", "GPS (Lat., Long., Alt., 2D speed, 3D speed)"),
		int32s("SCAL", 1, 10_000_000, 10_000_000, 1000, 1000, 100),
		klv("GPSU", typeUTCDate, 16, 1, []byte(gpsu)),
		uint32s("GPSF", 3),
		int32s("GPS5", 5, samples...),
	)
	accl := nested("STRM",
		chars("STNM", "Accelerometer"),
		int32s("ACCL", 3, 1, 2, 3),
	)

	return nested("DEVC",
		uint32s("DVID", deviceID),
		chars("DVNM", "Camera"),
		strm,
		accl,
	)
}

func TestDecoder_Decode(t *testing.T) {
	p1 := gpsPayload(1, "240501120000.000",
		454_000_000, 76_000_000, 250_000, 5_000, 10,
		454_000_100, 76_000_100, 251_000, 5_500, 20,
	)
	p2 := gpsPayload(1, "240501120001.000",
		454_000_200, 76_000_200, 252_000, 6_000, 30,
	)

	raw := &telemetry.RawTrack{
		Data: append(append([]byte{}, p1...), p2...),
		Payloads: []telemetry.Payload{
			{Offset: 0, Size: len(p1), Start: 0, Duration: time.Second},
			{Offset: len(p1), Size: len(p2), Start: time.Second, Duration: time.Second},
		},
	}

	devices, err := NewDecoder().Decode(context.Background(), raw, telemetry.Selector{telemetry.StreamGPS5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(devices))
	}

	device := devices[0]
	if device.ID != "1" || device.Name != "Camera" {
		t.Errorf("Unexpected device %s/%s", device.ID, device.Name)
	}
	if device.Stream("ACCL") != nil {
		t.Error("Expected ACCL to be skipped by the selector")
	}

	gps := device.Stream(telemetry.StreamGPS5)
	if gps == nil {
		t.Fatal("Expected GPS5 stream")
	}
	if len(gps.Samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(gps.Samples))
	}

	first := gps.Samples[0]
	expected := []float64{45.4, 7.6, 250, 5, 0.1}
	for i, v := range expected {
		if math.Abs(first.Value[i]-v) > 1e-9 {
			t.Errorf("Component %d: expected %v, got %v", i, v, first.Value[i])
		}
	}

	expectedCTS := []int64{0, 500, 1000}
	for i, ms := range expectedCTS {
		if *gps.Samples[i].CTS != ms {
			t.Errorf("Sample %d: expected cts %d, got %d", i, ms, *gps.Samples[i].CTS)
		}
	}

	expectedDate := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	if gps.Samples[1].Date == nil || !gps.Samples[1].Date.Equal(expectedDate) {
		t.Errorf("Expected date %v, got %v", expectedDate, gps.Samples[1].Date)
	}
}

func TestDecoder_SkipsMalformedPayload(t *testing.T) {
	good := gpsPayload(1, "240501120000.000", 1, 1, 1, 1, 1)
	bad := []byte("DEVC\x00\x01\xff\xffgarbage!")

	raw := &telemetry.RawTrack{
		Data: append(append([]byte{}, bad...), good...),
		Payloads: []telemetry.Payload{
			{Offset: 0, Size: len(bad), Duration: time.Second},
			{Offset: len(bad), Size: len(good), Start: time.Second, Duration: time.Second},
		},
	}

	devices, err := NewDecoder().Decode(context.Background(), raw, telemetry.Selector{telemetry.StreamGPS5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := devices.SampleCount(telemetry.StreamGPS5); n != 1 {
		t.Errorf("Expected 1 sample, got %d", n)
	}
}

func TestDecoder_AllPayloadsMalformed(t *testing.T) {
	raw := &telemetry.RawTrack{Data: []byte("DEVC\x00\x01\xff\xffgarbage!")}

	_, err := NewDecoder().Decode(context.Background(), raw, nil)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestDecoder_EmptyTrack(t *testing.T) {
	for _, raw := range []*telemetry.RawTrack{nil, {}} {
		if _, err := NewDecoder().Decode(context.Background(), raw, nil); !errors.Is(err, ErrEmptyTrack) {
			t.Errorf("Expected ErrEmptyTrack, got %v", err)
		}
	}
}

func TestDecoder_WithoutGPS(t *testing.T) {
	payload := nested("DEVC",
		uint32s("DVID", 1),
		nested("STRM", int32s("ACCL", 3, 1, 2, 3)),
	)

	devices, err := NewDecoder().Decode(context.Background(), &telemetry.RawTrack{Data: payload}, telemetry.Selector{telemetry.StreamGPS5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := devices.SampleCount(telemetry.StreamGPS5); n != 0 {
		t.Errorf("Expected no GPS samples, got %d", n)
	}
}

func TestDecoder_MultipleDevicesKeepOrder(t *testing.T) {
	data := bytes.Join([][]byte{
		gpsPayload(7, "240501120000.000", 1, 1, 1, 1, 1),
		gpsPayload(2, "240501120000.000", 2, 2, 2, 2, 2),
		gpsPayload(7, "240501120001.000", 3, 3, 3, 3, 3),
	}, nil)

	devices, err := NewDecoder().Decode(context.Background(), &telemetry.RawTrack{Data: data}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(devices) != 2 || devices[0].ID != "7" || devices[1].ID != "2" {
		t.Fatalf("Unexpected devices %v", devices)
	}
	if n := len(devices[0].Stream(telemetry.StreamGPS5).Samples); n != 2 {
		t.Errorf("Expected 2 samples for device 7, got %d", n)
	}
}

func TestDecoder_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := &telemetry.RawTrack{Data: gpsPayload(1, "240501120000.000", 1, 1, 1, 1, 1)}
	if _, err := NewDecoder().Decode(ctx, raw, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
