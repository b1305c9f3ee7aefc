package civiltime

import (
	"errors"
	"testing"
	"time"
)

func TestToAbsolute(t *testing.T) {
	converter := NewConverter(nil)

	instant, err := converter.ToAbsolute("2024-01-15", "08:00:00")
	if err != nil {
		t.Fatalf("ToAbsolute returned error: %v", err)
	}

	if got := instant.UTC(); !got.Equal(time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected instant: %v", got)
	}

	_, offset := instant.Zone()
	if offset != 9*60*60 {
		t.Fatalf("expected +09:00 offset, got %d", offset)
	}
}

func TestToAbsoluteCustomLocation(t *testing.T) {
	loc := time.FixedZone("TEST", 5*60*60)
	converter := NewConverter(loc)

	instant, err := converter.ToAbsolute("2024-06-01", "12:30:00")
	if err != nil {
		t.Fatalf("ToAbsolute returned error: %v", err)
	}

	if got := instant.UTC(); !got.Equal(time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected instant: %v", got)
	}
}

func TestToAbsoluteMalformedInput(t *testing.T) {
	converter := NewConverter(nil)

	cases := []struct {
		name  string
		date  string
		clock string
		field string
	}{
		{name: "bad date", date: "15-01-2024", clock: "08:00:00", field: "date"},
		{name: "empty date", date: "", clock: "08:00:00", field: "date"},
		{name: "bad time", date: "2024-01-15", clock: "8am", field: "time"},
		{name: "empty time", date: "2024-01-15", clock: "", field: "time"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := converter.ToAbsolute(tc.date, tc.clock)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected FormatError, got %T", err)
			}
			if formatErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, formatErr.Field)
			}
		})
	}
}

func TestAddMinutes(t *testing.T) {
	converter := NewConverter(nil)
	base := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

	if got := converter.AddMinutes(base, -30); !got.Equal(base.Add(-30 * time.Minute)) {
		t.Fatalf("unexpected shifted instant: %v", got)
	}
	if got := converter.AddMinutes(base, 5); !got.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("unexpected shifted instant: %v", got)
	}
}

func TestFormat(t *testing.T) {
	converter := NewConverter(nil)
	instant := time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC)

	if got := converter.Format(instant); got != "2024-01-15 08:00:00" {
		t.Fatalf("unexpected formatted value: %q", got)
	}
	if got := converter.FormatClock(instant); got != "08:00:00" {
		t.Fatalf("unexpected clock value: %q", got)
	}
}
