package rotation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/systmms/passup/pkg/store"
)

var (
	// ErrBlocked means the entry's domain is on the source blocklist.
	ErrBlocked = errors.New("domain is blocklisted")
	// ErrNoScript means no script directory has a usable script for the domain.
	ErrNoScript = errors.New("no script for domain")
)

// ScriptDir is a directory of site scripts named <key>.js.
type ScriptDir struct {
	Dir string
	// Blocklist names scripts that must not be used, either by path or by
	// file name.
	Blocklist []string
}

// Remap redirects domains matching Pattern to the script for Key.
type Remap struct {
	Pattern *regexp.Regexp
	Key     string
}

// Route is an entry together with the script that rotates it.
type Route struct {
	// Index is the entry's position in the parsed model.
	Index  int
	Entry  store.Entry
	Domain string
	Key    string
	Script string
}

// Router maps entries to scripts. It is immutable and safe for concurrent use.
type Router struct {
	dirs   []ScriptDir
	remaps []Remap
}

// NewRouter returns a router over dirs, searched in order. The first
// matching remap wins.
func NewRouter(dirs []ScriptDir, remaps []Remap) *Router {
	return &Router{dirs: dirs, remaps: remaps}
}

// Route finds the script for entry. It returns ErrBlocked when the domain is
// in blocklist and ErrNoScript when no script exists.
func (r *Router) Route(index int, entry store.Entry, blocklist []string) (Route, error) {
	domain, err := store.Domain(entry.Site)
	if err != nil {
		return Route{}, err
	}
	for _, blocked := range blocklist {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(blocked)), "www.") == domain {
			return Route{}, fmt.Errorf("%w: %s", ErrBlocked, domain)
		}
	}

	key := r.Key(domain)
	for _, dir := range r.dirs {
		script := filepath.Join(dir.Dir, key+".js")
		if dir.blocks(script) {
			continue
		}
		info, err := os.Stat(script)
		if err != nil || info.IsDir() {
			continue
		}
		return Route{Index: index, Entry: entry, Domain: domain, Key: key, Script: script}, nil
	}
	return Route{}, fmt.Errorf("%w: %s (looked for %s.js)", ErrNoScript, domain, key)
}

// Key applies the first matching remap to domain.
func (r *Router) Key(domain string) string {
	for _, m := range r.remaps {
		if m.Pattern.MatchString(domain) {
			return m.Key
		}
	}
	return domain
}

func (d ScriptDir) blocks(script string) bool {
	clean := filepath.Clean(script)
	for _, b := range d.Blocklist {
		if filepath.Clean(b) == clean || b == filepath.Base(script) {
			return true
		}
	}
	return false
}
