package gpmf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// klv encodes a single entry including padding
func klv(key string, typ byte, size, repeat int, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(key)
	buf.WriteByte(typ)
	buf.WriteByte(byte(size))
	_ = binary.Write(&buf, binary.BigEndian, uint16(repeat))
	buf.Write(data)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func nested(key string, children ...[]byte) []byte {
	data := bytes.Join(children, nil)
	// nested entries use a size of 1 byte and a repeat equal to the length
	return klv(key, typeNested, 1, len(data), data)
}

func chars(key, s string) []byte {
	return klv(key, typeChar, len(s), 1, []byte(s))
}

func int32s(key string, components int, values ...int32) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	return klv(key, typeInt32, 4*components, len(values)/components, buf.Bytes())
}

func uint32s(key string, values ...uint32) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	return klv(key, typeUint32, 4, len(values), buf.Bytes())
}

func TestParseEntries(t *testing.T) {
	b := bytes.Join([][]byte{
		chars("DVNM", "Camera"),
		uint32s("DVID", 1),
		int32s("SCAL", 1, 10, 100),
	}, nil)

	entries, err := parseEntries(b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	if entries[0].Key != "DVNM" || entries[0].String() != "Camera" {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	if id := entries[1].Identifier(); id != "1" {
		t.Errorf("Expected device id 1, got %s", id)
	}

	scale, err := entries[2].Flat()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(scale) != 2 || scale[0] != 10 || scale[1] != 100 {
		t.Errorf("Unexpected scale %v", scale)
	}
}

func TestParseEntries_Truncated(t *testing.T) {
	b := int32s("GPS5", 5, 1, 2, 3, 4, 5)
	_, err := parseEntries(b[:len(b)-4])
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestParseEntries_StopsAtFiller(t *testing.T) {
	b := append(chars("STNM", "GPS"), make([]byte, 16)...)
	entries, err := parseEntries(b)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}
}

func TestEntry_Values(t *testing.T) {
	e, _ := parseEntries(int32s("GPS5", 5, 1, -2, 3, 4, 5, 6, 7, 8, 9, 10))
	values, err := e[0].Values()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(values) != 2 || len(values[0]) != 5 {
		t.Fatalf("Expected 2 samples of 5 components, got %v", values)
	}
	if values[0][1] != -2 || values[1][4] != 10 {
		t.Errorf("Unexpected values %v", values)
	}

	if _, err = (entry{Key: "DVNM", Type: typeChar, Size: 1, Repeat: 1, Data: []byte("x")}).Values(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType, got %v", err)
	}
}

func TestEntry_Time(t *testing.T) {
	e := entry{Key: "GPSU", Type: typeUTCDate, Size: 16, Repeat: 1, Data: []byte("240501123015.500")}
	got, err := e.Time()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := time.Date(2024, 5, 1, 12, 30, 15, 500_000_000, time.UTC)
	if !got.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestAlign(t *testing.T) {
	for in, expected := range map[int]int{0: 0, 1: 4, 4: 4, 5: 8, 20: 20} {
		if got := align(in); got != expected {
			t.Errorf("align(%d): expected %d, got %d", in, expected, got)
		}
	}
}
