package emh1_modbus

import (
	"bytes"
	"testing"
)

func TestCommandFrames(t *testing.T) {
	cases := []struct {
		name  string
		build func(byte) ([]byte, error)
		want  string
	}{
		{"read current", readCurrentCommand, ":010300330003C6\r\n"},
		{"read firmware", readFirmwareCommand, ":010300010002F9\r\n"},
		{"read serial", readSerialNumberCommand, ":010300500008A4\r\n"},
		{"read duty cycle", readDutyCycleCommand, ":0103002E0005C9\r\n"},
		{"enable charging", enableChargingCommand, ":01100005000102A1A1A5\r\n"},
		{"disable charging", disableChargingCommand, ":01100005000102E0E027\r\n"},
		{"disable current", disableCurrentCommand, ":0110001400010203E8ED\r\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frame, err := c.build(0x01)
			if err != nil {
				t.Fatal(err)
			}
			if got := string(frame); got != c.want {
				t.Errorf("frame = %q, want %q", got, c.want)
			}
		})
	}
}

func TestWriteCurrentCommand(t *testing.T) {
	frame, err := writeCurrentCommand(0x01, dutyCycleForAmps(10))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(frame); got != ":0110001400010200A632\r\n" {
		t.Errorf("frame = %q", got)
	}
}

func TestDutyCycleForAmps(t *testing.T) {
	cases := []struct {
		amps uint8
		want uint16
	}{
		{5, 83},
		{10, 166},
		{16, 266},
		{32, 531},
	}
	for _, c := range cases {
		if got := dutyCycleForAmps(c.amps); got != c.want {
			t.Errorf("dutyCycleForAmps(%d) = %d, want %d", c.amps, got, c.want)
		}
	}
}

func TestWakeUpSequence(t *testing.T) {
	frames, err := wakeUpSequence(0x01)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames", len(frames))
	}
	if got := string(frames[0]); got != ":000300010002FA\r\n" {
		t.Errorf("broadcast frame = %q", got)
	}
	if got := string(frames[1]); got != ":010300010002F9\r\n" {
		t.Errorf("direct frame = %q", got)
	}
	if !bytes.Equal(frames[1], frames[2]) {
		t.Error("second and third wake frames must match")
	}
}
