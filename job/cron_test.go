package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/errors"
)

func mustParse(t *testing.T, expr string) *Spec {
	t.Helper()
	s, err := ParseCron(expr, time.UTC)
	require.NoError(t, err)
	return s
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestParseCron_FormatIsIdentity(t *testing.T) {
	for _, expr := range []string{"* * * * *", "*/15 9-17 * * 1-5", "0 0 1 1 *", "30 4 * * 0,6"} {
		assert.Equal(t, expr, mustParse(t, expr).String())
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "61 * * * *", "* 25 * * *", "* * * * mon-fri-sat"} {
		_, err := ParseCron(expr, time.UTC)
		require.Error(t, err, expr)
		assert.True(t, errors.Is(err, ErrInvalidCronSpec), expr)
	}
}

func TestMatches_BusinessHours(t *testing.T) {
	// Every 15 minutes, 9:00-17:45, Monday through Friday.
	s := mustParse(t, "*/15 9-17 * * 1-5")

	// 2024-03-04 is a Monday.
	assert.True(t, s.Matches(at(t, "2024-03-04T09:15:00Z")))
	assert.True(t, s.Matches(at(t, "2024-03-04T17:45:00Z")))
	assert.False(t, s.Matches(at(t, "2024-03-04T09:07:00Z")), "minute not on the quarter")
	assert.False(t, s.Matches(at(t, "2024-03-04T08:45:00Z")), "before business hours")
	assert.False(t, s.Matches(at(t, "2024-03-04T18:00:00Z")), "after business hours")
	assert.False(t, s.Matches(at(t, "2024-03-03T09:15:00Z")), "Sunday")
}

func TestNext_BusinessHours(t *testing.T) {
	s := mustParse(t, "*/15 9-17 * * 1-5")

	// Monday 09:07 rolls forward to 09:15, then 09:30.
	next := s.Next(at(t, "2024-03-04T09:07:00Z"))
	assert.Equal(t, at(t, "2024-03-04T09:15:00Z"), next)
	assert.Equal(t, at(t, "2024-03-04T09:30:00Z"), s.Next(next))

	// After the last slot of the day, the next run is 09:00 tomorrow.
	assert.Equal(t, at(t, "2024-03-05T09:00:00Z"), s.Next(at(t, "2024-03-04T17:45:00Z")))

	// Friday evening jumps over the weekend.
	assert.Equal(t, at(t, "2024-03-11T09:00:00Z"), s.Next(at(t, "2024-03-08T17:45:00Z")))
}

func TestNext_IsStrictlyAfter(t *testing.T) {
	s := mustParse(t, "* * * * *")
	from := at(t, "2024-03-04T09:15:00Z")
	assert.Equal(t, at(t, "2024-03-04T09:16:00Z"), s.Next(from))
}

func TestMatches_DomDowUnion(t *testing.T) {
	// Both day fields restricted: classical cron fires when either matches.
	s := mustParse(t, "0 0 13 * 5")

	assert.True(t, s.Matches(at(t, "2024-09-13T00:00:00Z")), "the 13th (a Friday, both match)")
	assert.True(t, s.Matches(at(t, "2024-09-06T00:00:00Z")), "a Friday that is not the 13th")
	assert.True(t, s.Matches(at(t, "2024-08-13T00:00:00Z")), "a 13th that is not a Friday")
	assert.False(t, s.Matches(at(t, "2024-08-14T00:00:00Z")))
}

func TestMatches_Timezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s, err := ParseCron("0 9 * * *", tokyo)
	require.NoError(t, err)

	// 00:00 UTC is 09:00 in Tokyo.
	assert.True(t, s.Matches(at(t, "2024-03-04T00:00:00Z")))
	assert.False(t, s.Matches(at(t, "2024-03-04T09:00:00Z")))
}
