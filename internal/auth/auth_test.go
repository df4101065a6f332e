package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestParseAndAuthenticate(t *testing.T) {
	src := "# relay users\n\nalice:" + hash(t, "wonderland") + "\nbob:" + hash(t, "builder") + "\n"

	c, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	require.True(t, c.Authenticate("alice", "wonderland"))
	require.True(t, c.Authenticate("bob", "builder"))
	require.False(t, c.Authenticate("alice", "builder"))
	require.False(t, c.Authenticate("mallory", "wonderland"))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "empty", src: "\n# nothing\n"},
		{name: "missing_hash", src: "alice\n"},
		{name: "not_bcrypt", src: "alice:plaintext\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users")
	require.NoError(t, os.WriteFile(path, []byte("carol:"+hash(t, "pw")+"\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.True(t, c.Authenticate("carol", "pw"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
