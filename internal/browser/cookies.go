package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const snapshotName = "slotbot-cookies"

// CookieStore persists a session's cookies to disk as a single signed (and,
// with a block key, encrypted) value, so a rotated browser can skip the
// portal's queue page.
type CookieStore struct {
	path  string
	codec *securecookie.SecureCookie
}

// NewCookieStore returns a store writing to path. hashKey is required;
// blockKey may be nil for sign-only snapshots.
func NewCookieStore(path string, hashKey, blockKey []byte, maxAge time.Duration) (*CookieStore, error) {
	if path == "" || len(hashKey) == 0 {
		return nil, errors.New("cookie store: path and hash key are required")
	}
	codec := securecookie.New(hashKey, blockKey).
		MaxLength(0).
		MaxAge(int(maxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &CookieStore{path: path, codec: codec}, nil
}

func (s *CookieStore) Save(ctx context.Context, sess CookieSession) error {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	enc, err := s.codec.Encode(snapshotName, cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(enc), 0o600)
}

// Restore loads the snapshot into sess. A missing snapshot is not an error;
// an expired or tampered one is.
func (s *CookieStore) Restore(ctx context.Context, sess CookieSession) (int, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var cookies []Cookie
	if err := s.codec.Decode(snapshotName, strings.TrimSpace(string(b)), &cookies); err != nil {
		return 0, fmt.Errorf("decode cookies: %w", err)
	}
	if len(cookies) == 0 {
		return 0, nil
	}
	if err := sess.SetCookies(ctx, cookies); err != nil {
		return 0, fmt.Errorf("set cookies: %w", err)
	}
	return len(cookies), nil
}
