// Package validate holds the structural input checks applied before credentials
// reach storage or the password hasher.
package validate

import (
	_ "embed"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Password length bounds, in characters.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 15
)

var emailRe = regexp.MustCompile(`^\w+([\.-]?\w+)*@\w+([\.-]?\w+)*(\.\w{2,3})+$`)

//go:embed common-passwords.txt
var commonPasswords string

var denylist = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswords, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			m[line] = struct{}{}
		}
	}
	return m
}()

// Email reports whether s is a structurally valid email address.
func Email(s string) bool {
	return emailRe.MatchString(s)
}

// Password reports whether s has an acceptable length and is not a common password.
func Password(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < MinPasswordLen || n > MaxPasswordLen {
		return false
	}
	_, common := denylist[s]
	return !common
}

// Empty reports whether s is the empty string.
func Empty(s string) bool { return s == "" }
