package s2n

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeneralizedTime(t *testing.T) {
	got, err := ParseGeneralizedTime("20500102030405Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2050, 1, 2, 3, 4, 5, 0, time.UTC), got)

	_, err = ParseGeneralizedTime("2050010203040")
	assert.ErrorIs(t, err, ErrBadASN1Time)

	_, err = ParseGeneralizedTime("20501302030405Z")
	assert.ErrorIs(t, err, ErrBadASN1TimeMonth)
}

func TestParseUTCTimeCenturyPivot(t *testing.T) {
	oldCentury, err := ParseUTCTime("500102030405Z")
	require.NoError(t, err)
	assert.Equal(t, 1950, oldCentury.Year())

	newCentury, err := ParseUTCTime("490102030405Z")
	require.NoError(t, err)
	assert.Equal(t, 2049, newCentury.Year())
}

func TestParseUTCTimeRejectsGarbage(t *testing.T) {
	_, err := ParseUTCTime("not-a-time!!Z")
	assert.ErrorIs(t, err, ErrBadASN1Time)
}
