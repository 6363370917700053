package secretstores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tobischo/gokeepasslib/v3"
	w "github.com/tobischo/gokeepasslib/v3/wrappers"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/pkg/store"
)

// KDBXEngine rotates entries of a KeePass 2.x database.
type KDBXEngine struct {
	opts  Options
	db    *gokeepasslib.Database
	index map[store.KDBXIdentity]*gokeepasslib.Entry
}

var _ store.Engine = (*KDBXEngine)(nil)

// NewKDBXEngine returns an engine for the database at opts.Path.
func NewKDBXEngine(opts Options) *KDBXEngine {
	return &KDBXEngine{opts: opts.withDefaults()}
}

func (e *KDBXEngine) Name() string { return e.opts.Name }
func (e *KDBXEngine) Path() string { return e.opts.Path }

// Unlock prompts for the master passphrase until the database opens.
func (e *KDBXEngine) Unlock(ctx context.Context) error {
	raw, err := os.ReadFile(e.opts.Path)
	if err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
	}

	err = promptUnlock(ctx, e.opts, func(pass []byte) error {
		db := gokeepasslib.NewDatabase()
		db.Credentials = gokeepasslib.NewPasswordCredentials(string(pass))
		if err := gokeepasslib.NewDecoder(bytes.NewReader(raw)).Decode(db); err != nil {
			if isKDBXCredentialError(err) {
				return fmt.Errorf("%w: %v", dserrors.ErrWrongPassphrase, err)
			}
			return err
		}
		if err := db.UnlockProtectedEntries(); err != nil {
			return fmt.Errorf("unlock protected values: %w", err)
		}
		e.db = db
		return nil
	})
	if err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "unlock", err)
	}

	e.index = make(map[store.KDBXIdentity]*gokeepasslib.Entry)
	walkEntries(e.db.Content.Root.Groups, func(entry *gokeepasslib.Entry) {
		e.index[store.KDBXIdentity(entry.UUID)] = entry
	})
	return nil
}

// isKDBXCredentialError recognizes the decoder's key mismatch failures.
// gokeepasslib reports them as plain errors, so match on the message.
func isKDBXCredentialError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"wrong password", "invalid credentials", "hmac", "integrity", "padding"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// walkEntries visits every entry of groups and their subgroups in document
// order. fn receives pointers into the database so it may replace entries.
func walkEntries(groups []gokeepasslib.Group, fn func(*gokeepasslib.Entry)) {
	for gi := range groups {
		g := &groups[gi]
		for ei := range g.Entries {
			fn(&g.Entries[ei])
		}
		walkEntries(g.Groups, fn)
	}
}

// Parse extracts one Entry per database entry that has a URL, a username and
// a password. Field references are resolved first.
func (e *KDBXEngine) Parse(ctx context.Context) (*store.Model, error) {
	if e.db == nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", dserrors.ErrLocked)
	}

	refs := newRefResolver(e.index)
	var entries []store.Entry
	var walkErr error
	walkEntries(e.db.Content.Root.Groups, func(kp *gokeepasslib.Entry) {
		if walkErr != nil {
			return
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return
		}

		id := store.KDBXIdentity(kp.UUID)
		title := kp.GetTitle()
		values := map[string]string{}
		for _, code := range []string{"A", "U", "P"} {
			key := refFields[code]
			v, err := refs.resolve(refKey(code, id), kp.GetContent(key))
			if err != nil {
				e.opts.Logger.Warn("Skipping KeePass entry %q: %v", title, &dserrors.EntryError{Site: kp.GetContent("URL"), Err: err})
				return
			}
			values[key] = v
		}

		site := store.NormalizeURL(values["URL"])
		if site == "" {
			e.opts.Logger.Warn("Skipping KeePass entry %q: no URL", title)
			return
		}
		if values["UserName"] == "" || values["Password"] == "" {
			e.opts.Logger.Warn("Skipping KeePass entry %q (%s): missing username or password", title, site)
			return
		}

		entry := store.Entry{
			Site:      site,
			Username:  values["UserName"],
			OldSecret: values["Password"],
			Identity:  id,
		}
		secret, err := newSecret(e.opts.Generator, entry.Label())
		if err != nil {
			walkErr = err
			return
		}
		entries = append(entries, entry.WithNewSecret(secret))
	})
	if walkErr != nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", walkErr)
	}

	e.opts.Logger.Debug("Parsed %d entries from %s", len(entries), e.opts.Name)
	return store.New(entries), nil
}

// Rewrite stores the new password of every changed entry and rewrites the
// database file in place.
func (e *KDBXEngine) Rewrite(ctx context.Context, updated *store.Model) error {
	if e.db == nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", dserrors.ErrLocked)
	}

	for _, entry := range updated.Changed() {
		id, err := store.AsKDBX(entry.Identity)
		if err != nil {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: err})
			continue
		}
		kp, ok := e.index[id]
		if !ok {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: fmt.Errorf("no KeePass entry with uuid %s", id)})
			continue
		}
		*kp = withPassword(*kp, entry.NewSecret)
	}

	if err := ctx.Err(); err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", err)
	}
	if err := e.save(); err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", err)
	}
	return nil
}

// withPassword returns a copy of kp whose Password value is secret.
func withPassword(kp gokeepasslib.Entry, secret string) gokeepasslib.Entry {
	values := make([]gokeepasslib.ValueData, len(kp.Values))
	copy(values, kp.Values)
	kp.Values = values

	for i := range kp.Values {
		if kp.Values[i].Key == "Password" {
			kp.Values[i].Value = gokeepasslib.V{Content: secret, Protected: w.NewBoolWrapper(true)}
			return kp
		}
	}
	kp.Values = append(kp.Values, gokeepasslib.ValueData{
		Key:   "Password",
		Value: gokeepasslib.V{Content: secret, Protected: w.NewBoolWrapper(true)},
	})
	return kp
}

// save encodes the database and replaces the file. The file is removed and
// recreated rather than truncated.
func (e *KDBXEngine) save() error {
	if err := e.db.LockProtectedEntries(); err != nil {
		return fmt.Errorf("lock protected values: %w", err)
	}
	var buf bytes.Buffer
	encodeErr := gokeepasslib.NewEncoder(&buf).Encode(e.db)
	if err := e.db.UnlockProtectedEntries(); err != nil && encodeErr == nil {
		encodeErr = fmt.Errorf("unlock protected values: %w", err)
	}
	if encodeErr != nil {
		return fmt.Errorf("encode database: %w", encodeErr)
	}

	mode := os.FileMode(0o600)
	if info, err := os.Stat(e.opts.Path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Remove(e.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old database: %w", err)
	}
	if err := os.WriteFile(e.opts.Path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("write database: %w", err)
	}
	return nil
}

// Close drops the decrypted database.
func (e *KDBXEngine) Close() error {
	e.db = nil
	e.index = nil
	return nil
}
