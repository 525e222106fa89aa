package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-10-10T10:10:10Z")
	assert.True(t, ok)
	assert.Equal(t, "2024-10-10T10:10:10Z", got.UTC().Format(time.RFC3339))

	got, ok = ParseTime("2024-10-10T10:10:10.25+07:00")
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	assert.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	got, ok := ParseSince("15m", now)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-15*time.Minute), got)

	_, ok = ParseSince("-5m", now)
	assert.False(t, ok)

	def := time.Unix(1, 0)
	assert.Equal(t, def, ParseTimeDefault("", def))
}

func TestParseDefaults(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault(" 7 ", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
	assert.True(t, ParseBoolDefault("yes", false))
	assert.True(t, ParseBoolDefault("1", false))
	assert.False(t, ParseBoolDefault("N", true))
	assert.True(t, ParseBoolDefault("maybe", true))
}
