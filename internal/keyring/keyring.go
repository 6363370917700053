// Package keyring fetches browser storage passphrases from the OS secret
// service (GNOME Keyring, KWallet via the Secret Service API, macOS Keychain).
package keyring

import (
	"errors"
	"fmt"
	"strings"

	gokeyring "github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no keyring item matches the browser.
var ErrNotFound = errors.New("browser passphrase not found in keyring")

// Provider returns the storage passphrase for a browser application
// ("chrome", "chromium").
type Provider interface {
	Passphrase(application string) (string, error)
}

// Item names one keyring lookup.
type Item struct {
	Service string
	Account string
}

// SecretServiceProvider looks up browser passphrases with go-keyring.
type SecretServiceProvider struct {
	// Override, when set, replaces the built-in candidates.
	Override *Item
}

// NewSecretServiceProvider returns a provider. service/account may be empty
// to use the browser defaults.
func NewSecretServiceProvider(service, account string) *SecretServiceProvider {
	p := &SecretServiceProvider{}
	if service != "" {
		p.Override = &Item{Service: service, Account: account}
	}
	return p
}

// Candidates lists the keyring items a browser stores its passphrase under,
// most specific first.
func Candidates(application string) []Item {
	app := strings.ToLower(strings.TrimSpace(application))
	switch app {
	case "chromium":
		return []Item{{Service: "Chromium Safe Storage", Account: "Chromium"}, {Service: "Chrome Safe Storage", Account: "Chrome"}}
	case "", "chrome", "google-chrome":
		return []Item{{Service: "Chrome Safe Storage", Account: "Chrome"}, {Service: "Chromium Safe Storage", Account: "Chromium"}}
	default:
		title := strings.ToUpper(app[:1]) + app[1:]
		return []Item{{Service: title + " Safe Storage", Account: title}}
	}
}

// Passphrase implements Provider.
func (p *SecretServiceProvider) Passphrase(application string) (string, error) {
	items := Candidates(application)
	if p.Override != nil {
		items = []Item{*p.Override}
	}

	for _, item := range items {
		secret, err := gokeyring.Get(item.Service, item.Account)
		if err != nil {
			if errors.Is(err, gokeyring.ErrNotFound) {
				continue
			}
			return "", fmt.Errorf("query keyring item %q: %w", item.Service, err)
		}
		if secret != "" {
			return secret, nil
		}
	}
	return "", fmt.Errorf("%w (application %q)", ErrNotFound, application)
}

// Static always returns the same passphrase.
type Static string

// Passphrase implements Provider.
func (s Static) Passphrase(string) (string, error) {
	if s == "" {
		return "", ErrNotFound
	}
	return string(s), nil
}
