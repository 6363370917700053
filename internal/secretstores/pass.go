package secretstores

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/logging"
	pkgexec "github.com/systmms/passup/pkg/exec"
	"github.com/systmms/passup/pkg/store"
)

// PassEngine rotates entries of a pass(1) store laid out as
// <store>/<site>/<username>.gpg. Decryption is delegated to pass and gpg-agent.
type PassEngine struct {
	opts     Options
	unlocked bool
	// extra keeps the lines after the password of every entry, keyed by path.
	extra map[string]string
}

var _ store.Engine = (*PassEngine)(nil)

// NewPassEngine returns an engine for the store directory at opts.Path.
// An empty path means $PASSWORD_STORE_DIR or ~/.password-store.
func NewPassEngine(opts Options) *PassEngine {
	if opts.Path == "" {
		opts.Path = defaultPassStore()
	}
	return &PassEngine{opts: opts.withDefaults()}
}

func defaultPassStore() string {
	if dir := os.Getenv("PASSWORD_STORE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".password-store"
	}
	return filepath.Join(home, ".password-store")
}

func (e *PassEngine) Name() string { return e.opts.Name }
func (e *PassEngine) Path() string { return e.opts.Path }

// Unlock checks that the store directory exists. gpg-agent asks for the key
// passphrase itself when pass first decrypts.
func (e *PassEngine) Unlock(ctx context.Context) error {
	info, err := os.Stat(e.opts.Path)
	if err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
	}
	if !info.IsDir() {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", fmt.Errorf("not a directory"))
	}
	e.unlocked = true
	e.extra = make(map[string]string)
	return nil
}

// entryPaths lists "<site>/<user>" for every two-level .gpg file.
func (e *PassEngine) entryPaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(e.opts.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != e.opts.Path {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".gpg") {
			return nil
		}
		rel, err := filepath.Rel(e.opts.Path, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(strings.TrimSuffix(rel, ".gpg"))
		if strings.Count(rel, "/") != 1 {
			e.opts.Logger.Debug("Ignoring pass entry %s: not <site>/<username>", rel)
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

// Parse runs "pass show" for every entry. The first line is the password.
func (e *PassEngine) Parse(ctx context.Context) (*store.Model, error) {
	if !e.unlocked {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", dserrors.ErrLocked)
	}
	paths, err := e.entryPaths()
	if err != nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", err)
	}

	var entries []store.Entry
	for _, path := range paths {
		site, user, _ := strings.Cut(path, "/")
		stdout, stderr, err := e.run(ctx, pkgexec.Command{Name: "pass", Args: []string{"show", path}})
		if err != nil {
			if ctx.Err() != nil {
				return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", ctx.Err())
			}
			e.opts.Logger.Warn("Skipping pass entry %s: %v: %s", path, err, strings.TrimSpace(string(stderr)))
			continue
		}

		password, rest, _ := strings.Cut(string(stdout), "\n")
		if password == "" {
			e.opts.Logger.Warn("Skipping pass entry %s: empty password", path)
			continue
		}
		e.extra[path] = rest

		entry := store.Entry{
			Site:      store.NormalizeURL(site),
			Username:  user,
			OldSecret: password,
			Identity:  store.PassIdentity(path),
		}
		secret, err := newSecret(e.opts.Generator, entry.Label())
		if err != nil {
			return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", err)
		}
		entries = append(entries, entry.WithNewSecret(secret))
	}

	e.opts.Logger.Debug("Parsed %d entries from %s", len(entries), e.opts.Name)
	return store.New(entries), nil
}

// Rewrite inserts every changed entry again with "pass insert -m -f",
// keeping the lines that followed the password.
func (e *PassEngine) Rewrite(ctx context.Context, updated *store.Model) error {
	if !e.unlocked {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", dserrors.ErrLocked)
	}

	var failed []string
	for _, entry := range updated.Changed() {
		id, err := store.AsPass(entry.Identity)
		if err != nil {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: err})
			continue
		}
		path := string(id)
		content := entry.NewSecret + "\n" + e.extra[path]
		_, stderr, err := e.run(ctx, pkgexec.Command{
			Name:  "pass",
			Args:  []string{"insert", "--multiline", "--force", path},
			Stdin: strings.NewReader(content),
		})
		if err != nil {
			msg := fmt.Sprintf("%v: %s", err, strings.TrimSpace(string(stderr)))
			e.opts.Logger.Error("pass insert %s failed: %s", path, logging.Redact(msg, []string{entry.NewSecret, entry.OldSecret}))
			failed = append(failed, path)
		}
	}
	if len(failed) > 0 {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", fmt.Errorf("pass insert failed for %s", strings.Join(failed, ", ")))
	}
	return nil
}

func (e *PassEngine) run(ctx context.Context, c pkgexec.Command) ([]byte, []byte, error) {
	c.Env = append(c.Env, "PASSWORD_STORE_DIR="+e.opts.Path)
	return e.opts.Executor.Run(ctx, c)
}

// Close forgets the cached entry contents.
func (e *PassEngine) Close() error {
	e.extra = nil
	e.unlocked = false
	return nil
}
