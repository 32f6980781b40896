package gpmf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	headerSize = 8

	typeNested  byte = 0
	typeInt8    byte = 'b'
	typeUint8   byte = 'B'
	typeChar    byte = 'c'
	typeFloat64 byte = 'd'
	typeFloat32 byte = 'f'
	typeFourCC  byte = 'F'
	typeInt64   byte = 'j'
	typeUint64  byte = 'J'
	typeInt32   byte = 'l'
	typeUint32  byte = 'L'
	typeInt16   byte = 's'
	typeUint16  byte = 'S'
	typeUTCDate byte = 'U'

	utcDateLayout = "060102150405.000"
)

var (
	// ErrMalformed is returned when the KLV structure cannot be parsed
	ErrMalformed = errors.New("malformed GPMF data")

	// ErrUnsupportedType is returned when a numeric value is requested from a non-numeric entry
	ErrUnsupportedType = errors.New("unsupported GPMF value type")

	elementSizes = map[byte]int{
		typeInt8:    1,
		typeUint8:   1,
		typeChar:    1,
		typeFloat64: 8,
		typeFloat32: 4,
		typeFourCC:  4,
		typeInt64:   8,
		typeUint64:  8,
		typeInt32:   4,
		typeUint32:  4,
		typeInt16:   2,
		typeUint16:  2,
	}
)

// entry is a single key-length-value item
type entry struct {
	Key    string
	Type   byte
	Size   int // Size of one sample in bytes
	Repeat int // Number of samples
	Data   []byte
}

// Nested reports whether the entry contains further KLV entries
func (e entry) Nested() bool {
	return e.Type == typeNested
}

// Children parses the payload of a nested entry
func (e entry) Children() ([]entry, error) {
	if !e.Nested() {
		return nil, fmt.Errorf("%w: %s is not a container", ErrMalformed, e.Key)
	}
	return parseEntries(e.Data)
}

// String returns a char payload with trailing NULs removed
func (e entry) String() string {
	return strings.TrimRight(string(e.Data), "\x00 ")
}

// Strings returns one string per sample of a char payload
func (e entry) Strings() []string {
	if e.Size == 0 {
		return nil
	}

	out := make([]string, 0, e.Repeat)
	for i := 0; i+e.Size <= len(e.Data); i += e.Size {
		out = append(out, strings.TrimRight(string(e.Data[i:i+e.Size]), "\x00 "))
	}
	return out
}

// Values decodes numeric samples. Each sample holds Size/elementSize components.
func (e entry) Values() ([][]float64, error) {
	elemSize, ok := elementSizes[e.Type]
	if !ok || e.Type == typeChar || e.Type == typeFourCC {
		return nil, fmt.Errorf("%w: %s has type %q", ErrUnsupportedType, e.Key, e.Type)
	}
	if e.Size == 0 || e.Size%elemSize != 0 {
		return nil, fmt.Errorf("%w: %s has sample size %d for type %q", ErrMalformed, e.Key, e.Size, e.Type)
	}

	components := e.Size / elemSize
	samples := make([][]float64, 0, e.Repeat)
	for i := 0; i < e.Repeat; i++ {
		raw := e.Data[i*e.Size : (i+1)*e.Size]

		sample := make([]float64, components)
		for j := range sample {
			sample[j] = decodeNumber(e.Type, raw[j*elemSize:(j+1)*elemSize])
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

// Flat returns all numeric components of all samples in order
func (e entry) Flat() ([]float64, error) {
	samples, err := e.Values()
	if err != nil {
		return nil, err
	}

	var out []float64
	for _, s := range samples {
		out = append(out, s...)
	}
	return out, nil
}

// Identifier renders a DVID-like entry, which is either a number or a FourCC
func (e entry) Identifier() string {
	switch e.Type {
	case typeFourCC, typeChar:
		return e.String()
	}

	values, err := e.Flat()
	if err != nil || len(values) == 0 {
		return e.String()
	}
	return fmt.Sprintf("%d", int64(values[0]))
}

// Time decodes a UTC date entry such as GPSU
func (e entry) Time() (time.Time, error) {
	if e.Type != typeUTCDate && e.Type != typeChar {
		return time.Time{}, fmt.Errorf("%w: %s has type %q", ErrUnsupportedType, e.Key, e.Type)
	}

	t, err := time.Parse(utcDateLayout, e.String())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", e.Key, err)
	}
	return t.UTC(), nil
}

func decodeNumber(typ byte, b []byte) float64 {
	switch typ {
	case typeInt8:
		return float64(int8(b[0]))
	case typeUint8:
		return float64(b[0])
	case typeInt16:
		return float64(int16(binary.BigEndian.Uint16(b)))
	case typeUint16:
		return float64(binary.BigEndian.Uint16(b))
	case typeInt32:
		return float64(int32(binary.BigEndian.Uint32(b)))
	case typeUint32:
		return float64(binary.BigEndian.Uint32(b))
	case typeInt64:
		return float64(int64(binary.BigEndian.Uint64(b)))
	case typeUint64:
		return float64(binary.BigEndian.Uint64(b))
	case typeFloat32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case typeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	}
	return math.NaN()
}

// parseEntries reads a sequence of KLV entries until the buffer or a zero key is reached
func parseEntries(b []byte) ([]entry, error) {
	var entries []entry

	for pos := 0; pos+headerSize <= len(b); {
		header := b[pos : pos+headerSize]
		if header[0] == 0 && header[1] == 0 && header[2] == 0 && header[3] == 0 {
			break // filler
		}

		e := entry{
			Key:    string(header[0:4]),
			Type:   header[4],
			Size:   int(header[5]),
			Repeat: int(binary.BigEndian.Uint16(header[6:8])),
		}

		length := e.Size * e.Repeat
		start := pos + headerSize
		if start+length > len(b) {
			return entries, fmt.Errorf("%w: %s declares %d bytes, %d available", ErrMalformed, e.Key, length, len(b)-start)
		}

		e.Data = b[start : start+length]
		entries = append(entries, e)

		pos = start + align(length)
	}

	return entries, nil
}

// align rounds n up to the 32-bit boundary every entry is padded to
func align(n int) int {
	return (n + 3) &^ 3
}
