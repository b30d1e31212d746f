package reminder

import (
	"reflect"
	"testing"
	"time"
)

func TestDue(t *testing.T) {
	cases := []struct {
		offset Offset
		delta  time.Duration
		want   bool
	}{
		// 1h before start, window ±5m: [55m, 65m] inclusive
		{Start1h, 65 * time.Minute, true},
		{Start1h, 70 * time.Minute, false},
		{Start1h, 55 * time.Minute, true},
		{Start1h, 54 * time.Minute, false},
		{Start1h, 60 * time.Minute, true},

		// 24h before start
		{Start24h, 24*time.Hour - 5*time.Minute, true},
		{Start24h, 24*time.Hour + 5*time.Minute, true},
		{Start24h, 24*time.Hour - 6*time.Minute, false},
		{Start24h, 23*time.Hour + 59*time.Minute + 59*time.Second, true},

		// 12h before start
		{Start12h, 12 * time.Hour, true},
		{Start12h, 12*time.Hour + 6*time.Minute, false},

		// 30m before end, ±5m
		{End30m, 25 * time.Minute, true},
		{End30m, 35 * time.Minute, true},
		{End30m, 36 * time.Minute, false},

		// 10m before end, ±2m
		{End10m, 8 * time.Minute, true},
		{End10m, 12 * time.Minute, true},
		{End10m, 7 * time.Minute, false},
		{End10m, 13 * time.Minute, false},

		// negative delta never matches
		{Start1h, -time.Hour, false},
	}
	for _, tc := range cases {
		if got := tc.offset.Due(tc.delta); got != tc.want {
			t.Errorf("%s.Due(%s) = %v, want %v", tc.offset, tc.delta, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	all := append(append([]Offset{}, StartOffsets...), EndOffsets...)
	for _, o := range all {
		got, err := ParseOffset(o.Token())
		if err != nil {
			t.Fatalf("ParseOffset(%q): %v", o.Token(), err)
		}
		if got != o {
			t.Errorf("round trip %s -> %s", o, got)
		}
	}
}

func TestParseOffsetRejectsUnknown(t *testing.T) {
	for _, token := range []string{"2h_before", "10m", "before_end", "24h_before_end"} {
		if _, err := ParseOffset(token); err == nil {
			t.Errorf("ParseOffset(%q) accepted malformed token", token)
		}
	}
}

func TestResolve(t *testing.T) {
	// Absent row: defaults.
	got := Resolve(Prefs{}, false)
	want := Defaults()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve(absent) = %+v, want defaults %+v", got, want)
	}

	// Present but entirely empty: still defaults.
	got = Resolve(Prefs{}, true)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve(empty) = %+v, want defaults %+v", got, want)
	}

	// Non-empty: exactly as stored, no merging with defaults.
	stored := Prefs{BeforeStart: []Offset{Start12h}}
	got = Resolve(stored, true)
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("Resolve(stored) = %+v, want %+v", got, stored)
	}
	if len(got.BeforeEnd) != 0 {
		t.Errorf("Resolve merged defaults into a configured tuple: %+v", got)
	}
}

func TestEncodeDecodeOffsets(t *testing.T) {
	enc := EncodeOffsets([]Offset{End10m, Start24h, Start24h, Start1h})
	if enc != "24h_before,1h_before,10m_before_end" {
		t.Errorf("EncodeOffsets = %q", enc)
	}

	dec, err := DecodeOffsets(enc)
	if err != nil {
		t.Fatalf("DecodeOffsets: %v", err)
	}
	if !reflect.DeepEqual(dec, []Offset{Start24h, Start1h, End10m}) {
		t.Errorf("DecodeOffsets = %v", dec)
	}

	dec, err = DecodeOffsets("")
	if err != nil || dec != nil {
		t.Errorf("DecodeOffsets(\"\") = %v, %v; want empty set", dec, err)
	}

	if _, err := DecodeOffsets("24h_before,bogus"); err == nil {
		t.Error("DecodeOffsets accepted malformed list")
	}
}
