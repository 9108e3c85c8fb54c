package connection

import (
	"testing"
	"time"
)

func TestBackoff_StrictDoubling(t *testing.T) {
	b := newBackoff(time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_NoCap(t *testing.T) {
	b := newBackoff(time.Second)

	var last time.Duration
	for i := 0; i < 20; i++ {
		last = b.Next()
	}
	if want := 1 * time.Second << 19; last != want {
		t.Errorf("Next() #20 = %v, want %v", last, want)
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := newBackoff(500 * time.Millisecond)

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != 500*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want %v", got, 500*time.Millisecond)
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset advance = %v, want %v", got, time.Second)
	}
}
