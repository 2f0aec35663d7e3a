package timelocal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(y, mo, d, h, mi, s int) Fields {
	return Fields{Year: y, Month: mo, Day: d, Hour: h, Minute: mi, Second: s}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		wantOK bool
	}{
		{"ordinary moment", fields(2024, 3, 15, 12, 30, 45), true},
		{"midnight", fields(2024, 1, 1, 0, 0, 0), true},
		{"end of day", fields(2024, 12, 31, 23, 59, 59), true},
		{"leap day on leap year", fields(2024, 2, 29, 10, 0, 0), true},
		{"leap day century leap year", fields(2000, 2, 29, 0, 0, 0), true},
		{"leap day non-leap year", fields(2023, 2, 29, 0, 0, 0), false},
		{"leap day century non-leap year", fields(1900, 2, 29, 0, 0, 0), false},
		{"february 30th", fields(2024, 2, 30, 0, 0, 0), false},
		{"april 31st", fields(2024, 4, 31, 0, 0, 0), false},
		{"month 13", fields(2024, 13, 1, 0, 0, 0), false},
		{"month zero", fields(2024, 0, 1, 0, 0, 0), false},
		{"day zero", fields(2024, 1, 0, 0, 0, 0), false},
		{"hour 24", fields(2024, 1, 1, 24, 0, 0), false},
		{"minute 60", fields(2024, 1, 1, 0, 60, 0), false},
		{"second 60", fields(2024, 1, 1, 0, 0, 60), false},
		{"negative hour", fields(2024, 1, 1, -1, 0, 0), false},
		{"year zero", fields(0, 1, 1, 0, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.fields)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidCalendar), "expected ErrInvalidCalendar, got %v", err)
			}
		})
	}
}

func TestCompareLocal(t *testing.T) {
	earlier := fields(2024, 1, 15, 10, 0, 0)
	later := fields(2024, 1, 15, 10, 0, 1)

	assert.Equal(t, -1, CompareLocal(earlier, later))
	assert.Equal(t, 1, CompareLocal(later, earlier))
	assert.Equal(t, 0, CompareLocal(earlier, earlier))

	// Field significance: a later year dominates everything after it.
	assert.Equal(t, -1, CompareLocal(fields(2023, 12, 31, 23, 59, 59), fields(2024, 1, 1, 0, 0, 0)))
	assert.Equal(t, -1, CompareLocal(fields(2024, 1, 31, 23, 0, 0), fields(2024, 2, 1, 0, 0, 0)))
}

func TestCompareLocal_MatchesChronologyWithinOneZone(t *testing.T) {
	zone := "America/New_York"
	a := fields(2024, 3, 9, 12, 0, 0)
	b := fields(2024, 3, 10, 12, 0, 0) // crosses a DST transition, same zone

	ia, err := ToInstant(a, zone)
	require.NoError(t, err)
	ib, err := ToInstant(b, zone)
	require.NoError(t, err)

	assert.Equal(t, -1, CompareLocal(a, b))
	assert.True(t, ia.Before(ib))
}

// Local-field ordering is deliberately NOT instant ordering across differing
// zones: 09:00 Tokyo happens before 08:00 New York on the same calendar day,
// but CompareLocal orders them the other way. This is a documented property
// of the representation, not a defect to be fixed.
func TestCompareLocal_DivergesFromInstantOrderAcrossZones(t *testing.T) {
	tokyo := fields(2024, 6, 1, 9, 0, 0)
	newYork := fields(2024, 6, 1, 8, 0, 0)

	assert.Equal(t, 1, CompareLocal(tokyo, newYork), "local-field order: 09:00 after 08:00")

	cmp, err := CompareInstant(tokyo, newYork, "Asia/Tokyo", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp, "instant order: Tokyo morning precedes New York morning")
}

func TestCompareDate(t *testing.T) {
	assert.Equal(t, -1, CompareDate(Date{2024, 1, 31}, Date{2024, 2, 1}))
	assert.Equal(t, 0, CompareDate(Date{2024, 2, 29}, Date{2024, 2, 29}))
	assert.Equal(t, 1, CompareDate(Date{2025, 1, 1}, Date{2024, 12, 31}))
}

func TestToInstant(t *testing.T) {
	instant, err := ToInstant(fields(2024, 7, 4, 12, 0, 0), "UTC")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC), instant)

	_, err = ToInstant(fields(2024, 7, 4, 12, 0, 0), "Not/AZone")
	assert.True(t, errors.Is(err, ErrUnresolvableZone))

	// Empty string means "zone unspecified" and never resolves.
	_, err = ToInstant(fields(2024, 7, 4, 12, 0, 0), "")
	assert.True(t, errors.Is(err, ErrUnresolvableZone))

	// Invalid calendar fields are rejected before zone resolution.
	_, err = ToInstant(fields(2024, 2, 30, 0, 0, 0), "UTC")
	assert.True(t, errors.Is(err, ErrInvalidCalendar))
}

func TestCompareInstant_UnresolvableZone(t *testing.T) {
	_, err := CompareInstant(fields(2024, 1, 1, 0, 0, 0), fields(2024, 1, 1, 0, 0, 0), "UTC", "Nowhere/Else")
	assert.True(t, errors.Is(err, ErrUnresolvableZone))
}

func TestFieldsString(t *testing.T) {
	assert.Equal(t, "2024-02-09 07:05:03", fields(2024, 2, 9, 7, 5, 3).String())
	assert.Equal(t, "2024-12-01", Date{2024, 12, 1}.String())
}
