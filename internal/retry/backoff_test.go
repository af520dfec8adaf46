package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayDeterministicWithoutJitter(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second,
		2 * time.Second,
	}

	for attempt, expected := range want {
		got := Delay(attempt, base, max, 0, nil)
		if got != expected {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, expected)
		}
	}
}

func TestDelayJitterStaysInBand(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	base := 100 * time.Millisecond
	max := 5 * time.Second
	jitter := 0.25

	for attempt := 0; attempt < 6; attempt++ {
		capped := Delay(attempt, base, max, 0, nil)
		lo := time.Duration(float64(capped) * (1 - jitter))
		hi := time.Duration(float64(capped) * (1 + jitter))

		for i := 0; i < 100; i++ {
			got := Delay(attempt, base, max, jitter, rnd)
			if got < lo || got > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}

func TestDelayNeverNegative(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for attempt := 0; attempt < 64; attempt++ {
		if got := Delay(attempt, time.Millisecond, time.Minute, 1.0, rnd); got < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, got)
		}
	}
}

func TestDelayDegenerateInputs(t *testing.T) {
	if got := Delay(-1, time.Second, time.Minute, 0, nil); got != 0 {
		t.Fatalf("negative attempt: got %v, want 0", got)
	}
	if got := Delay(3, 0, time.Minute, 0, nil); got != 0 {
		t.Fatalf("zero base: got %v, want 0", got)
	}
	// Huge attempt numbers must clamp at max instead of overflowing.
	if got := Delay(600, time.Second, time.Minute, 0, nil); got != time.Minute {
		t.Fatalf("huge attempt: got %v, want %v", got, time.Minute)
	}
}
