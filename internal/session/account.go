package session

import (
	"fmt"
	"regexp"
	"strings"
)

var keyRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateKey checks that key is usable as a directory name.
func ValidateKey(key string) error {
	if !keyRegexp.MatchString(key) {
		return fmt.Errorf("invalid account key %q: must match ^[a-z0-9_-]{1,64}$", key)
	}
	return nil
}

// AccountKey derives a directory-safe key from a user id. User ids are often
// e-mail addresses, so every other character maps to '_'.
func AccountKey(selfID string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(selfID)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() == 64 {
			break
		}
	}
	key := b.String()
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
