package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateToInt(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"2024-01-26", 20240126, false},
		{"20240126", 20240126, false},
		{"2024-13-01", 0, true},
		{"202401", 0, true},
		{"not-a-date", 0, true},
	}
	for _, c := range cases {
		got, err := DateToInt(c.in)
		if c.wantErr {
			assert.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDate)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestDateIntRoundTrip(t *testing.T) {
	for _, d := range []int{20240101, 20240229, 20241231, 19991219} {
		s, err := IntToDateString(d)
		require.NoError(t, err)

		back, err := DateToInt(s)
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestDateTimestampRoundTrip(t *testing.T) {
	for _, d := range []int{20240101, 20240704, 20241231} {
		ts, err := DateIntToTimestamp(d)
		require.NoError(t, err)

		back := TimestampToDateInt(ts)
		assert.Equal(t, d, back)
	}
}

func TestIsWeekend(t *testing.T) {
	// 2024-01-01 is a Monday.
	weekend, err := IsWeekend(20240101)
	require.NoError(t, err)
	assert.False(t, weekend)

	// 2024-01-06 is a Saturday.
	weekend, err = IsWeekend(20240106)
	require.NoError(t, err)
	assert.True(t, weekend)
}
