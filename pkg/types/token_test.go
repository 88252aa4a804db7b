package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRecordFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := TokenRecord{
		AccessToken: "tok",
		ExpiresIn:   3600,
		RetrievedAt: now.Unix(),
	}

	assert.True(t, rec.Fresh(now), "just-retrieved record should be fresh")

	// one second before the margin boundary is still fresh
	assert.True(t, rec.Fresh(now.Add(3600*time.Second-301*time.Second)))

	// exactly at retrieved_at + expires_in - margin is NOT fresh
	assert.False(t, rec.Fresh(now.Add(3600*time.Second-300*time.Second)))

	assert.False(t, rec.Fresh(now.Add(time.Hour)), "expired record should not be fresh")

	t.Run("ZeroTTL", func(t *testing.T) {
		rec := TokenRecord{AccessToken: "tok", RetrievedAt: now.Unix()}
		assert.False(t, rec.Fresh(now), "a record with no declared lifetime is never fresh")
	})
}

func TestTokenRecordRoundTrip(t *testing.T) {
	rec := TokenRecord{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		ExpiresIn:    7200,
		RetrievedAt:  1_700_000_000,
	}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var got TokenRecord
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, rec, got)

	t.Run("NoRefreshToken", func(t *testing.T) {
		rec := TokenRecord{AccessToken: "a", ExpiresIn: 60, RetrievedAt: 1}
		raw, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "refresh_token", "absent refresh token should be omitted")

		var got TokenRecord
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, rec, got)
	})

	t.Run("NullExpiresIn", func(t *testing.T) {
		// some refresh responses omit or null the lifetime; that must load as 0
		var got TokenRecord
		require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","expires_in":null,"retrieved_at":5}`), &got))
		assert.Zero(t, got.ExpiresIn)
		assert.Equal(t, "a", got.AccessToken)
	})
}
