package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotbot/internal/secrets"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeysPrintsThreeKeys(t *testing.T) {
	out, err := execute(t, "", "keys")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		_, v, ok := strings.Cut(strings.TrimPrefix(l, "export "), "=")
		require.True(t, ok, l)
		b, err := base64.StdEncoding.DecodeString(v)
		require.NoError(t, err)
		assert.Len(t, b, 32)
	}
}

func TestEncryptSealsValue(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

	out, err := execute(t, "", "encrypt", "--key", key, "hunter2")
	require.NoError(t, err)
	sealed := strings.TrimSpace(out)
	assert.True(t, secrets.IsSealed(sealed))

	box, err := secrets.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	out, err = execute(t, "from-stdin\n", "encrypt", "--key", key)
	require.NoError(t, err)
	plain, err = box.Open(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", plain)
}

func TestEncryptNeedsKey(t *testing.T) {
	t.Setenv("SLOTBOT_SECRET_KEY", "")
	_, err := execute(t, "", "encrypt", "x")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "slotbot dev")
}
