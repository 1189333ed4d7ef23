package sound

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFillSamplesPads(t *testing.T) {
	samples := []int16{9, 9, 9, 9}
	fillSamples(samples, []byte{0x01, 0x00, 0xff, 0xff})

	want := []int16{1, -1, 0, 0}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("samples = %v; want %v", samples, want)
		}
	}
}

func TestPumpWritesEveryFrame(t *testing.T) {
	raw := make([]byte, 10)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	samples := make([]int16, 2)

	var frames [][]int16
	err := pump(context.Background(), bytes.NewReader(raw), samples, func() error {
		frames = append(frames, append([]int16(nil), samples...))
		return nil
	})
	if err != nil {
		t.Fatalf("pump() error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("wrote %d frames; want 3", len(frames))
	}
	if last := frames[2]; last[0] != 0x0a09 || last[1] != 0 {
		t.Errorf("last frame = %v; want zero padding", last)
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pump(ctx, bytes.NewReader(make([]byte, 64)), make([]int16, 4), func() error {
		t.Fatal("write after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("pump() = %v; want context.Canceled", err)
	}
}

func TestPumpWriteError(t *testing.T) {
	boom := errors.New("underflow")
	err := pump(context.Background(), bytes.NewReader(make([]byte, 8)), make([]int16, 2), func() error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("pump() = %v; want %v", err, boom)
	}
}
