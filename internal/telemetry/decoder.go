package telemetry

import (
	"context"
	"slices"
)

// Selector restricts decoding to the given stream keys
type Selector []string

// Has reports whether the selector includes the key. An empty selector selects everything.
func (s Selector) Has(key string) bool {
	return len(s) == 0 || slices.Contains(s, key)
}

// Decoder turns a raw telemetry track into per-device sample streams
type Decoder interface {
	Decode(ctx context.Context, raw *RawTrack, selector Selector) (Devices, error)
}
