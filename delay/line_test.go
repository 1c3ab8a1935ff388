// SPDX-License-Identifier: EPL-2.0

package delay

import (
	"errors"
	"testing"
)

// ramp returns n samples counting up from start.
func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestNewLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"positive", 16, false},
		{"one", 1, false},
		{"zero", 0, true},
		{"negative", -4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := NewLine(tt.capacity)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCapacity) {
					t.Fatalf("NewLine(%d) error = %v, want ErrInvalidCapacity", tt.capacity, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLine(%d) error = %v", tt.capacity, err)
			}
			if l.Len() != tt.capacity {
				t.Errorf("Len() = %d, want %d", l.Len(), tt.capacity)
			}
			if l.WritePos() != 0 {
				t.Errorf("WritePos() = %d, want 0", l.WritePos())
			}
		})
	}
}

func TestCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		maxMs float64
		rate  int
		want  int
	}{
		{1000, 44100, 44100 + GuardFrames},
		{1000, 48000, 48000 + GuardFrames},
		{500, 48000, 24000 + GuardFrames},
		{0, 48000, GuardFrames},
		{-10, 48000, GuardFrames},
	}

	for _, tt := range tests {
		if got := Capacity(tt.maxMs, tt.rate); got != tt.want {
			t.Errorf("Capacity(%v, %d) = %d, want %d", tt.maxMs, tt.rate, got, tt.want)
		}
	}
}

func TestFramesFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   float64
		rate int
		want int
	}{
		{10, 48000, 480},
		{250, 48000, 12000},
		{10, 44100, 441},
		{2.5, 44100, 110},
		{0.3, 10000, 3},
		{0, 48000, 0},
		{-5, 48000, 0},
		{10, 0, 0},
	}

	for _, tt := range tests {
		if got := FramesFor(tt.ms, tt.rate); got != tt.want {
			t.Errorf("FramesFor(%v, %d) = %d, want %d", tt.ms, tt.rate, got, tt.want)
		}
	}
}

func TestLine_ZeroDelayReturnsWrittenBlock(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(16)
	in := ramp(1, 4)
	out := make([]float32, 4)

	l.Write(in)
	l.Read(0, out)

	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if l.WritePos() != 4 {
		t.Errorf("WritePos() = %d, want 4", l.WritePos())
	}
}

func TestLine_ReadDoesNotMoveCursor(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(16)
	l.Write(ramp(1, 5))
	out := make([]float32, 3)

	l.Read(2, out)
	l.Read(0, out)

	if l.WritePos() != 5 {
		t.Errorf("WritePos() = %d, want 5", l.WritePos())
	}
}

func TestLine_DelayedReadAcrossWrap(t *testing.T) {
	t.Parallel()

	const (
		capacity = 16
		block    = 4
	)

	l, _ := NewLine(capacity)
	written := 0
	for range 5 {
		l.Write(ramp(written+1, block))
		written += block
	}

	if l.WritePos() != written%capacity {
		t.Fatalf("WritePos() = %d, want %d", l.WritePos(), written%capacity)
	}

	for delayFrames := 0; delayFrames <= capacity-block; delayFrames++ {
		out := make([]float32, block)
		l.Read(delayFrames, out)

		for i := range out {
			// sample values are their absolute index + 1
			want := float32(written - block - delayFrames + i + 1)
			if out[i] != want {
				t.Errorf("delay %d: out[%d] = %v, want %v", delayFrames, i, out[i], want)
			}
		}
	}
}

func TestLine_BoundaryDelays(t *testing.T) {
	t.Parallel()

	const capacity = 32

	tests := []struct {
		name  string
		delay int
		block int
	}{
		{"zero", 0, 1},
		{"capacity minus one single frame", capacity - 1, 1},
		{"capacity minus one full block", capacity - 1, 8},
		{"capacity", capacity, 8},
		{"far beyond capacity", 10 * capacity, 8},
		{"negative", -3, 8},
		{"block equals capacity", 5, capacity},
		{"block longer than capacity", 5, capacity + 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, _ := NewLine(capacity)
			for i := range 10 {
				l.Write(ramp(i*tt.block, tt.block))
			}

			out := make([]float32, tt.block)
			l.Read(tt.delay, out) // must not panic

			if l.WritePos() < 0 || l.WritePos() >= capacity {
				t.Errorf("WritePos() = %d, out of [0, %d)", l.WritePos(), capacity)
			}
		})
	}
}

func TestLine_OversizedDelayIsClamped(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(16)
	l.Write(ramp(1, 16))

	clamped := make([]float32, 4)
	limit := make([]float32, 4)
	l.Read(100, clamped)
	l.Read(16-4, limit)

	for i := range clamped {
		if clamped[i] != limit[i] {
			t.Errorf("clamped[%d] = %v, want %v", i, clamped[i], limit[i])
		}
	}
}

func TestLine_BlockLongerThanCapacity(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(16)
	l.Write(ramp(1, 20))

	if l.WritePos() != 4 {
		t.Fatalf("WritePos() = %d, want 4", l.WritePos())
	}

	out := make([]float32, 4)
	l.Read(0, out)
	want := ramp(17, 4)
	for i := range out {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestLine_Reset(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(8)
	l.Write(ramp(1, 5))
	l.Reset()

	if l.WritePos() != 0 {
		t.Errorf("WritePos() = %d after Reset, want 0", l.WritePos())
	}

	out := make([]float32, 8)
	l.Read(0, out)
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %v after Reset, want 0", i, v)
		}
	}
}

func TestLine_EmptyBlocks(t *testing.T) {
	t.Parallel()

	l, _ := NewLine(8)
	l.Write(nil)
	l.Read(3, nil)

	if l.WritePos() != 0 {
		t.Errorf("WritePos() = %d, want 0", l.WritePos())
	}
}

func BenchmarkLine_WriteRead256(b *testing.B) {
	l, _ := NewLine(Capacity(DefaultMaxDelayMs, 48000))
	in := ramp(0, 256)
	out := make([]float32, 256)

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		l.Write(in)
		l.Read(480, out)
	}
}
