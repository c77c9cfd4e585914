package emh1_modbus

import (
	"bytes"
	"errors"
	"testing"
)

func TestComputeLRC(t *testing.T) {
	cases := []struct {
		message []byte
		want    byte
	}{
		{[]byte{0x01, 0x03, 0x00, 0x33, 0x00, 0x03}, 0xC6},
		{[]byte{0x00, 0x03, 0x00, 0x01, 0x00, 0x02}, 0xFA},
		{[]byte{0x01, 0x03, 0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}, 0x57},
		{nil, 0x00},
	}
	for _, c := range cases {
		if got := ComputeLRC(c.message); got != c.want {
			t.Errorf("ComputeLRC(% X) = %02X, want %02X", c.message, got, c.want)
		}
	}
}

func TestEncodeCommand(t *testing.T) {
	frame, err := EncodeCommand(0x01, 0x03, 0x0033, 0x00, 0x03)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(frame); got != ":010300330003C6\r\n" {
		t.Errorf("unexpected frame %q", got)
	}
}

func TestEncodeCommandRejectsSlaveID(t *testing.T) {
	_, err := EncodeCommand(248, 0x03, 0x0001, 0x00, 0x02)
	if !errors.Is(err, ErrInvalidSlaveID) {
		t.Errorf("expected ErrInvalidSlaveID, got %v", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(">0103063380C20E0E0E57\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if frame.SlaveID != 0x01 {
		t.Errorf("slave id = %02X", frame.SlaveID)
	}
	if frame.Function != 0x03 {
		t.Errorf("function = %02X", frame.Function)
	}
	if !bytes.Equal(frame.Data, []byte{0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}) {
		t.Errorf("data = % X", frame.Data)
	}
}

func TestDecodeFrameDiscardsGarbagePrefix(t *testing.T) {
	frame, err := DecodeFrame([]byte("\x00\xFFxy>0103063380C20E0E0E57\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if frame.Raw != ">0103063380C20E0E0E57" {
		t.Errorf("raw = %q", frame.Raw)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"no marker", "0103063380C20E0E0E57\r\n", ErrMalformedFrame},
		{"too short", ">010306\r\n", ErrMalformedFrame},
		{"odd hex", ">0103063380C20E0E0E5\r\n", ErrMalformedFrame},
		{"not hex", ">01030633G0C20E0E0E57\r\n", ErrMalformedFrame},
		{"bad checksum", ">0103063380C20E0E0E58\r\n", ErrChecksumMismatch},
		{"empty", "", ErrMalformedFrame},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(c.raw))
			if !errors.Is(err, c.want) {
				t.Errorf("DecodeFrame(%q) err = %v, want %v", c.raw, err, c.want)
			}
		})
	}
}

func TestEncodeDecodeInverse(t *testing.T) {
	for slaveID := 1; slaveID <= MaxSlaveID; slaveID++ {
		frame, err := EncodeCommand(byte(slaveID), 0x03, 0x0033, 0x00, 0x03)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("slave %d: %v", slaveID, err)
		}
		if decoded.SlaveID != byte(slaveID) {
			t.Fatalf("slave %d decoded as %d", slaveID, decoded.SlaveID)
		}
		if decoded.Function != 0x03 {
			t.Fatalf("slave %d: function %02X", slaveID, decoded.Function)
		}
		if !bytes.Equal(decoded.Data, []byte{0x00, 0x33, 0x00, 0x03}) {
			t.Fatalf("slave %d: data % X", slaveID, decoded.Data)
		}
	}
}

func TestDecodeFrameCorruptionSweep(t *testing.T) {
	good := ">0103063380C20E0E0E57"
	for i := 1; i < len(good); i++ {
		corrupted := []byte(good)
		if corrupted[i] == '0' {
			corrupted[i] = '1'
		} else {
			corrupted[i] = '0'
		}
		if _, err := DecodeFrame(corrupted); err == nil {
			t.Errorf("corruption at %d went undetected: %q", i, corrupted)
		}
	}
}
