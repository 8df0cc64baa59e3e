package session

import (
	"errors"
	"fmt"
	"regexp"
)

// Session names become path components under ~/.roomsync/sessions and show up
// as log fields, so the accepted alphabet is deliberately narrow.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name can serve as a session identifier: lowercase
// letters, digits, hyphen and underscore, starting with a letter or digit, at
// most 64 characters.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("session name is empty")
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use lowercase letters, digits, - and _, starting with a letter or digit, at most 64 characters", name)
	}
	return nil
}
