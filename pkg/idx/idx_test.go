package idx_test

import (
	"testing"
	"time"

	"github.com/assetworks/assetauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	a := idx.New()
	b := idx.New()

	require.NotEqual(t, a, b)
	require.Less(t, a.String(), b.String())
}

func TestParseRoundTrip(t *testing.T) {
	id := idx.New()

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid", "0123456789"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, "input %q", s)
	}
}

func TestNewAtEmbedsTimestamp(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := idx.NewAt(at)

	require.WithinDuration(t, at, id.Time(), time.Millisecond)
}

func TestZero(t *testing.T) {
	require.True(t, idx.Zero.IsZero())
	require.False(t, idx.New().IsZero())
	require.True(t, idx.Zero.Time().IsZero())
}
