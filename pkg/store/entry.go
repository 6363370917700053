package store

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Entry is one site/username/secret record.
type Entry struct {
	Site      string
	Username  string
	OldSecret string
	NewSecret string
	Identity  Identity
}

// Validate reports why an entry may not enter a Model.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.Site) == "":
		return errors.New("site is empty")
	case e.Username == "":
		return errors.New("username is empty")
	}
	return nil
}

// WithNewSecret returns a copy of e carrying secret as its new secret.
func (e Entry) WithNewSecret(secret string) Entry {
	e.NewSecret = secret
	return e
}

// Reverted returns a copy of e whose new secret equals the old one, so that a
// rewrite leaves the stored value unchanged.
func (e Entry) Reverted() Entry {
	e.NewSecret = e.OldSecret
	return e
}

// Changed reports whether a rewrite would store a different secret.
func (e Entry) Changed() bool {
	return e.NewSecret != "" && e.NewSecret != e.OldSecret
}

// Label is a human readable, secret free description used in logs.
func (e Entry) Label() string {
	return fmt.Sprintf("%s (%s)", e.Site, e.Username)
}

// NormalizeURL makes sure raw carries a scheme, defaulting to https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// Domain extracts the lower-cased host of a site URL with any leading "www."
// removed.
func Domain(site string) (string, error) {
	u, err := url.Parse(NormalizeURL(site))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", site, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q does not contain a domain name", site)
	}
	return strings.TrimPrefix(host, "www."), nil
}
