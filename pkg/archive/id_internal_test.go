package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_TicksFromTime_TimeFromTicks_RoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		when time.Time
	}{
		{name: "UnixEpoch", when: time.Unix(0, 0).UTC()},
		{name: "Y2K", when: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "Now", when: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ticks := ticksFromTime(testCase.when)
			got := timeFromTicks(ticks)

			assert.True(t, testCase.when.Equal(got), "got=%v want=%v", got, testCase.when)
		})
	}
}

func Test_TicksFromTime_IsMonotonicWithWallClock(t *testing.T) {
	t.Parallel()

	earlier := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2020, 1, 1, 0, 0, 1, 0, time.UTC)

	assert.Less(t, ticksFromTime(earlier), ticksFromTime(later))
}

func Test_TicksFromTime_MatchesKnownDotNetTickValueAtUnixEpoch(t *testing.T) {
	t.Parallel()

	// 621355968000000000 is the well-known .NET tick value of
	// 1970-01-01T00:00:00Z (DateTime(1970,1,1).Ticks).
	assert.Equal(t, int64(621_355_968_000_000_000), ticksFromTime(time.Unix(0, 0).UTC()))
}
