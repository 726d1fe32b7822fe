// Package gate decides whether the desk shows admin controls.
//
// It compares a submitted pair against one configured pair. There are no
// sessions or tokens; it only toggles what the desk displays.
package gate

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultUsername = "admin"
	DefaultPassword = "1234"
)

// Gate holds the configured admin pair. A Password starting with "$2" is a bcrypt hash.
type Gate struct {
	username string
	password string
}

// New returns a gate for the pair. Empty values fall back to the defaults.
func New(username, password string) Gate {
	if strings.TrimSpace(username) == "" {
		username = DefaultUsername
	}
	if password == "" {
		password = DefaultPassword
	}
	return Gate{username: username, password: password}
}

// Check reports whether username and password match the configured pair.
func (g Gate) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	var passOK bool
	if g.hashed() {
		passOK = bcrypt.CompareHashAndPassword([]byte(g.password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	}
	return userOK && passOK
}

func (g Gate) hashed() bool {
	return strings.HasPrefix(g.password, "$2")
}

// HashPassword produces a bcrypt hash suitable for adminPassword.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
