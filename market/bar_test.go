package market

import (
	"errors"
	"testing"
	"time"
)

func mkBar(ts time.Time, o, h, l, c, v float64) Bar {
	return Bar{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestValidate(t *testing.T) {
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

	t.Run("should accept a well formed series", func(t *testing.T) {
		bars := []Bar{
			mkBar(base, 100, 101, 99, 100.5, 1000),
			mkBar(base.Add(time.Minute), 100.5, 102, 100, 101, 900),
		}
		if err := Validate(bars); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("should reject an empty series", func(t *testing.T) {
		if err := Validate(nil); !errors.Is(err, ErrEmptySeries) {
			t.Errorf("got %v, want ErrEmptySeries", err)
		}
	})

	t.Run("should reject high below close", func(t *testing.T) {
		bars := []Bar{mkBar(base, 100, 100.2, 99, 101, 1000)}
		if err := Validate(bars); !errors.Is(err, ErrMalformedBar) {
			t.Errorf("got %v, want ErrMalformedBar", err)
		}
	})

	t.Run("should reject low above open", func(t *testing.T) {
		bars := []Bar{mkBar(base, 100, 101, 100.5, 101, 1000)}
		if err := Validate(bars); !errors.Is(err, ErrMalformedBar) {
			t.Errorf("got %v, want ErrMalformedBar", err)
		}
	})

	t.Run("should reject negative volume", func(t *testing.T) {
		bars := []Bar{mkBar(base, 100, 101, 99, 100, -1)}
		if err := Validate(bars); !errors.Is(err, ErrMalformedBar) {
			t.Errorf("got %v, want ErrMalformedBar", err)
		}
	})

	t.Run("should reject duplicate timestamps", func(t *testing.T) {
		bars := []Bar{
			mkBar(base, 100, 101, 99, 100, 1000),
			mkBar(base, 100, 101, 99, 100, 1000),
		}
		if err := Validate(bars); !errors.Is(err, ErrNonMonotonic) {
			t.Errorf("got %v, want ErrNonMonotonic", err)
		}
	})

	t.Run("should reject out of order timestamps", func(t *testing.T) {
		bars := []Bar{
			mkBar(base.Add(time.Minute), 100, 101, 99, 100, 1000),
			mkBar(base, 100, 101, 99, 100, 1000),
		}
		if err := Validate(bars); !errors.Is(err, ErrNonMonotonic) {
			t.Errorf("got %v, want ErrNonMonotonic", err)
		}
	})
}

func TestGenerateDemoBars(t *testing.T) {
	t.Run("should produce a valid series", func(t *testing.T) {
		bars := GenerateDemoBars(2, 7)
		if err := Validate(bars); err != nil {
			t.Fatalf("demo series invalid: %v", err)
		}
		if len(bars) != 2*390 {
			t.Errorf("got %d bars, want %d", len(bars), 2*390)
		}
	})

	t.Run("should be reproducible for the same seed", func(t *testing.T) {
		a := GenerateDemoBars(1, 42)
		b := GenerateDemoBars(1, 42)
		if len(a) != len(b) {
			t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("bar %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	})
}
