package browser_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotbot/internal/browser"
	"github.com/example/slotbot/internal/browser/browsertest"
)

func TestCookieStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "cookies")
	store, err := browser.NewCookieStore(path, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32), time.Hour)
	require.NoError(t, err)

	src := browsertest.New(browser.Edge)
	src.Jar = []browser.Cookie{
		{Name: "JSESSIONID", Value: "abc", Domain: "driver-services.dvsa.gov.uk", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "queue", Value: "it-42", Domain: ".dvsa.gov.uk", Path: "/", Expires: 1.9e9},
	}
	require.NoError(t, store.Save(ctx, src))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "JSESSIONID", "snapshot must be encrypted with a block key")

	dst := browsertest.New(browser.Chrome)
	n, err := store.Restore(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	if diff := cmp.Diff(src.Jar, dst.Jar); diff != "" {
		t.Errorf("restored cookies mismatch (-want +got):\n%s", diff)
	}
}

func TestCookieStoreMissingAndTampered(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies")
	store, err := browser.NewCookieStore(path, bytes.Repeat([]byte{1}, 32), nil, time.Hour)
	require.NoError(t, err)

	n, err := store.Restore(ctx, browsertest.New(browser.Chrome))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = store.Restore(ctx, browsertest.New(browser.Chrome))
	assert.Error(t, err)

	other, err := browser.NewCookieStore(path, bytes.Repeat([]byte{9}, 32), nil, time.Hour)
	require.NoError(t, err)
	src := browsertest.New(browser.Chrome)
	src.Jar = []browser.Cookie{{Name: "a", Value: "b"}}
	require.NoError(t, other.Save(ctx, src))
	_, err = store.Restore(ctx, browsertest.New(browser.Chrome))
	assert.Error(t, err, "snapshot signed with another key must be rejected")
}

func TestNewCookieStoreRequiresKey(t *testing.T) {
	_, err := browser.NewCookieStore("x", nil, nil, time.Hour)
	assert.Error(t, err)
}

func TestKindNext(t *testing.T) {
	assert.Equal(t, browser.Edge, browser.Chrome.Next())
	assert.Equal(t, browser.Chrome, browser.Edge.Next())

	k, err := browser.ParseKind("edge")
	require.NoError(t, err)
	assert.Equal(t, browser.Edge, k)
	_, err = browser.ParseKind("safari")
	assert.Error(t, err)
}
