package inventory

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")

	// ErrAlreadyDeleted is distinct from ErrNotFound so the API can
	// answer a repeated delete with a softer message than a bare 404.
	ErrAlreadyDeleted = errors.New("already deleted")
)

// NormalizeName trims a user-supplied name and rejects blanks. All
// Service implementations apply it to doll and container names.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be blank", ErrValidation)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: name too long", ErrValidation)
	}
	return name, nil
}

// NormalizePurchaseURL trims a purchase link. Blank clears the link;
// anything else must be an absolute http(s) URL.
func NormalizePurchaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > 512 {
		return "", fmt.Errorf("%w: purchase url too long", ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: purchase url must be an absolute http(s) url", ErrValidation)
	}
	return raw, nil
}
