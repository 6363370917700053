// Package generator produces replacement secrets.
package generator

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numbers   = "0123456789"
	symbols   = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	similar   = "iI1loO0\"'`|"
)

// ErrEmptyCharset is returned when a policy enables no character class.
var ErrEmptyCharset = errors.New("password policy enables no character class")

// Generator returns a fresh secret on every call.
type Generator interface {
	Generate() (string, error)
}

// Policy controls the shape of generated passwords.
type Policy struct {
	Length         int  `yaml:"length" json:"length"`
	Numbers        bool `yaml:"numbers" json:"numbers"`
	Lowercase      bool `yaml:"lowercase" json:"lowercase"`
	Uppercase      bool `yaml:"uppercase" json:"uppercase"`
	Symbols        bool `yaml:"symbols" json:"symbols"`
	ExcludeSimilar bool `yaml:"exclude_similar" json:"exclude_similar"`
	// Strict requires at least one character of every enabled class.
	Strict bool `yaml:"strict" json:"strict"`
}

// DefaultPolicy is 15 characters of letters and digits, no look-alikes,
// every class present.
func DefaultPolicy() Policy {
	return Policy{
		Length:         15,
		Numbers:        true,
		Lowercase:      true,
		Uppercase:      true,
		ExcludeSimilar: true,
		Strict:         true,
	}
}

// PasswordGenerator implements Generator on crypto/rand.
type PasswordGenerator struct {
	policy  Policy
	classes []string
}

// NewPasswordGenerator validates policy and returns a generator for it.
func NewPasswordGenerator(policy Policy) (*PasswordGenerator, error) {
	if policy.Length <= 0 {
		return nil, fmt.Errorf("password length must be positive, got %d", policy.Length)
	}

	var classes []string
	add := func(enabled bool, set string) {
		if !enabled {
			return
		}
		if policy.ExcludeSimilar {
			set = strip(set, similar)
		}
		if set != "" {
			classes = append(classes, set)
		}
	}
	add(policy.Lowercase, lowercase)
	add(policy.Uppercase, uppercase)
	add(policy.Numbers, numbers)
	add(policy.Symbols, symbols)

	if len(classes) == 0 {
		return nil, ErrEmptyCharset
	}
	if policy.Strict && policy.Length < len(classes) {
		return nil, fmt.Errorf("password length %d too short for %d required character classes", policy.Length, len(classes))
	}

	return &PasswordGenerator{policy: policy, classes: classes}, nil
}

// Generate returns a new password.
func (g *PasswordGenerator) Generate() (string, error) {
	all := strings.Join(g.classes, "")
	out := make([]byte, 0, g.policy.Length)

	if g.policy.Strict {
		for _, class := range g.classes {
			c, err := pick(class)
			if err != nil {
				return "", err
			}
			out = append(out, c)
		}
	}
	for len(out) < g.policy.Length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the mandatory characters are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return int(v.Int64()), nil
}

func strip(set, remove string) string {
	var b strings.Builder
	for _, r := range set {
		if !strings.ContainsRune(remove, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
