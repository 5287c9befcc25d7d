package timeutil

import (
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	cases := map[string]int64{
		"1m":  60,
		"15m": 900,
		"1h":  3600,
		"4h":  14400,
		"1d":  86400,
		"1w":  604800,
		"1M":  2592000,
	}
	for tf, want := range cases {
		got, err := ParseTimeframe(tf)
		if err != nil {
			t.Fatalf("ParseTimeframe(%q): %v", tf, err)
		}
		if got != want {
			t.Errorf("ParseTimeframe(%q) = %d, want %d", tf, got, want)
		}
	}

	if _, err := ParseTimeframe("bogus"); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestAlignToTimeframeExactBoundary(t *testing.T) {
	boundary := time.Unix(3600*100, 0).In(Shanghai)
	got, err := AlignToTimeframe(boundary, "1h", Floor)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(boundary) {
		t.Errorf("floor of exact boundary = %v, want %v", got, boundary)
	}
	got, err = AlignToTimeframe(boundary, "1h", Ceil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(boundary) {
		t.Errorf("ceil of exact boundary = %v, want %v", got, boundary)
	}
}

func TestIsKlineClosed(t *testing.T) {
	open := time.Unix(0, 0)
	closed, err := IsKlineClosed(open, "1h", open.Add(59*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if closed {
		t.Error("expected not yet closed at 59 minutes")
	}
	closed, err = IsKlineClosed(open, "1h", open.Add(60*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("expected closed at exactly one period")
	}
}

func TestTimeUntilNextKline(t *testing.T) {
	now := time.Unix(3600*100+120, 0)
	d, err := TimeUntilNextKline("1h", now)
	if err != nil {
		t.Fatal(err)
	}
	want := 58 * time.Minute
	if d != want {
		t.Errorf("TimeUntilNextKline = %v, want %v", d, want)
	}
}
