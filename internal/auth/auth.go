// Package auth verifies SOCKS5 username/password credentials against a set
// of bcrypt hashes.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoCredentials is returned when a credentials source holds no users.
var ErrNoCredentials = errors.New("auth: no credentials")

// Credentials maps usernames to bcrypt password hashes.
type Credentials struct {
	hashes map[string][]byte
}

// LoadFile reads credentials from path. See Parse for the format.
func LoadFile(path string) (*Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads "user:bcrypt-hash" lines, htpasswd style. Blank lines and lines
// starting with '#' are ignored.
func Parse(r io.Reader) (*Credentials, error) {
	c := &Credentials{hashes: make(map[string][]byte)}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}

		user, hash, ok := strings.Cut(s, ":")
		if !ok || user == "" || hash == "" {
			return nil, fmt.Errorf("line %d: expected user:hash", line)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.hashes[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if len(c.hashes) == 0 {
		return nil, ErrNoCredentials
	}
	return c, nil
}

// Authenticate reports whether password matches the stored hash for username.
func (c *Credentials) Authenticate(username, password string) bool {
	hash, ok := c.hashes[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Len returns the number of users.
func (c *Credentials) Len() int {
	return len(c.hashes)
}
