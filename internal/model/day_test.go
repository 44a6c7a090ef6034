package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/model"
)

func TestDayOf(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)

	tests := map[string]struct {
		t      time.Time
		loc    *time.Location
		expDay string
	}{
		"A UTC time should use the UTC day.": {
			t:      time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC),
			loc:    time.UTC,
			expDay: "2026-10-15",
		},

		"A late UTC time should move to the next local day.": {
			t:      time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC),
			loc:    plus2,
			expDay: "2026-10-16",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expDay, model.DayOf(test.t, test.loc).String())
		})
	}
}

func TestDayArithmetic(t *testing.T) {
	assert := assert.New(t)

	d, err := model.ParseDay("2026-03-01")
	require.NoError(t, err)

	assert.Equal("2026-02-28", d.AddDays(-1).String())
	assert.Equal("2026-01-30", d.AddDays(-30).String())
	assert.True(d.AddDays(-1).Before(d))
	assert.False(d.Before(d))

	_, err = model.ParseDay("15/10/2026")
	assert.ErrorIs(err, model.ErrNotValid)
}

func TestDayText(t *testing.T) {
	var d model.Day
	require.NoError(t, d.UnmarshalText([]byte("2026-10-14")))
	raw, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", string(raw))
}
