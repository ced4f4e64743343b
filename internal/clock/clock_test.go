package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarketIsOpen(t *testing.T) {
	loc := time.UTC

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday mid-session", time.Date(2026, 3, 4, 12, 0, 0, 0, loc), true}, // Wednesday
		{"weekday at open", time.Date(2026, 3, 4, 9, 30, 0, 0, loc), true},
		{"weekday before open", time.Date(2026, 3, 4, 9, 29, 59, 0, loc), false},
		{"weekday at close", time.Date(2026, 3, 4, 16, 0, 0, 0, loc), false},
		{"weekday after close", time.Date(2026, 3, 4, 16, 0, 1, 0, loc), false},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, loc), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, loc), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MarketIsOpen(tc.at))
		})
	}
}

func TestFakeClock(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Fake{At: at}
	assert.Equal(t, at, f.Now())
}
