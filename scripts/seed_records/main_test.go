// Package main — unit tests for seed_records helper functions.
//
// seed_records is a development tool, not part of the production service.
// main() itself only parses flags; the seeding logic lives in seed() and the
// pure helpers, which are tested here against a temporary database.
package main

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brpsystems/applinks/internal/storage"
)

func TestNormalizeIP_IPv4_Unchanged(t *testing.T) {
	ip, err := normalizeIP("203.0.113.42")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.42", ip)
}

func TestNormalizeIP_MappedIPv6_Unmapped(t *testing.T) {
	// The server stores the unmapped form, so the seeded key must match it.
	ip, err := normalizeIP("::ffff:203.0.113.42")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.42", ip)
}

func TestNormalizeIP_Invalid(t *testing.T) {
	_, err := normalizeIP("not-an-ip")
	assert.Error(t, err)
}

func TestParsePlatform(t *testing.T) {
	p, err := parsePlatform("android")
	require.NoError(t, err)
	assert.Equal(t, storage.Android, p)

	p, err = parsePlatform("ios")
	require.NoError(t, err)
	assert.Equal(t, storage.IOS, p)

	_, err = parsePlatform("windows")
	assert.Error(t, err)
}

func TestRandomDeviceID_CookieShaped(t *testing.T) {
	id := randomDeviceID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{10}$`), id)
	assert.NotEqual(t, id, randomDeviceID())
}

func TestSeed_RecordIsRetrievable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")

	rec, err := seed(options{
		dbPath:   dbPath,
		ip:       "203.0.113.42",
		code:     "123456",
		platform: storage.Android,
		deviceID: "ab12cd34ef",
		age:      time.Hour,
	})
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Add(-time.Hour).UnixMilli(), rec.CreatedAt, float64(5*time.Second.Milliseconds()))

	store, err := storage.Open(dbPath, 24*time.Hour)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Take(storage.Android, "203.0.113.42")
	require.NoError(t, err)
	assert.Equal(t, "123456", got.ProviderCode)
	assert.Equal(t, "ab12cd34ef", got.DeviceID)
}

func TestSeed_ExpiredRecordIsNotRetrievable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")

	_, err := seed(options{
		dbPath:   dbPath,
		ip:       "203.0.113.42",
		code:     "123456",
		platform: storage.IOS,
		deviceID: "ab12cd34ef",
		age:      25 * time.Hour,
	})
	require.NoError(t, err)

	store, err := storage.Open(dbPath, 24*time.Hour)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Take(storage.IOS, "203.0.113.42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
