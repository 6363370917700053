package secretstores

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/secure"
	"github.com/systmms/passup/pkg/store"
)

const (
	chromeSelect = `SELECT action_url, username_value, password_value FROM logins`
	chromeUpdate = `UPDATE logins SET password_value = ? WHERE action_url = ? AND username_value = ?`
	// chromeApplication is the keyring application name Chrome files its
	// storage passphrase under.
	chromeApplication = "chrome"
)

// ChromeEngine rotates passwords in a Chrome "Login Data" SQLite database.
// Rows are located by (action_url, username_value), so entries carry no
// identity.
type ChromeEngine struct {
	opts Options
	// useKeyring selects the keyring-backed passphrase for non-v10 blobs.
	useKeyring bool

	db      *sql.DB
	ownsDB  bool
	keyring *secure.SecureBuffer
	keys    map[string]*secure.SecureBuffer
	// tags remembers the version tag of every parsed row.
	tags map[chromeRow]string
}

type chromeRow struct {
	actionURL string
	username  string
}

var _ store.Engine = (*ChromeEngine)(nil)

// NewChromeEngine returns an engine for the database at opts.Path. When
// useKeyring is set, blobs that are not tagged v10 are decrypted with the
// passphrase from opts.Keyring.
func NewChromeEngine(opts Options, useKeyring bool) *ChromeEngine {
	return &ChromeEngine{opts: opts.withDefaults(), useKeyring: useKeyring, ownsDB: true}
}

// NewChromeEngineWithDB returns an engine over an already open database.
// The caller keeps ownership of db.
func NewChromeEngineWithDB(db *sql.DB, opts Options, useKeyring bool) *ChromeEngine {
	return &ChromeEngine{opts: opts.withDefaults(), useKeyring: useKeyring, db: db}
}

func (e *ChromeEngine) Name() string { return e.opts.Name }
func (e *ChromeEngine) Path() string { return e.opts.Path }

// Unlock opens the database and, for keyring-backed profiles, fetches the
// storage passphrase. Chrome never prompts.
func (e *ChromeEngine) Unlock(ctx context.Context) error {
	if e.db == nil {
		// The driver would silently create a missing file.
		if _, err := os.Stat(e.opts.Path); err != nil {
			return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
		}
		db, err := sql.Open("sqlite", e.opts.Path)
		if err != nil {
			return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
		}
		e.db = db
	}
	if err := e.db.PingContext(ctx); err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
	}

	if e.useKeyring {
		if e.opts.Keyring == nil {
			return dserrors.WrapSource(e.opts.Name, e.opts.Path, "unlock", fmt.Errorf("profile needs a keyring but none is configured"))
		}
		pass, err := e.opts.Keyring.Passphrase(chromeApplication)
		if err != nil {
			return dserrors.WrapSource(e.opts.Name, e.opts.Path, "unlock", err)
		}
		sealed, err := secure.NewSecureString(pass)
		if err != nil {
			return dserrors.WrapSource(e.opts.Name, e.opts.Path, "unlock", err)
		}
		e.keyring = sealed
	}
	e.keys = make(map[string]*secure.SecureBuffer)
	e.tags = make(map[chromeRow]string)
	return nil
}

// passphraseFor picks the passphrase a blob with tag was encrypted under.
func (e *ChromeEngine) passphraseFor(tag string) ([]byte, error) {
	switch {
	case tag == "v10":
		return []byte(chromeV10Passphrase), nil
	case e.useKeyring:
		return e.keyring.RevealBytes()
	default:
		return nil, nil
	}
}

// keyFor returns the AES key for tag, deriving and sealing it on first use.
func (e *ChromeEngine) keyFor(tag string) ([]byte, error) {
	if sealed, ok := e.keys[tag]; ok {
		return sealed.RevealBytes()
	}
	pass, err := e.passphraseFor(tag)
	if err != nil {
		return nil, err
	}
	key := chromeKey(pass)
	out := append([]byte(nil), key...)
	sealed, err := secure.NewSecureBuffer(key)
	if err != nil {
		return nil, err
	}
	e.keys[tag] = sealed
	return out, nil
}

// Parse decrypts every login row. A row that does not decrypt to UTF-8 fails
// the whole source.
func (e *ChromeEngine) Parse(ctx context.Context) (*store.Model, error) {
	if e.keys == nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", dserrors.ErrLocked)
	}
	entries, err := e.parse(ctx)
	if err != nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", err)
	}
	e.opts.Logger.Debug("Parsed %d entries from %s", len(entries), e.opts.Name)
	return store.New(entries), nil
}

func (e *ChromeEngine) parse(ctx context.Context) ([]store.Entry, error) {
	rows, err := e.db.QueryContext(ctx, chromeSelect)
	if err != nil {
		return nil, fmt.Errorf("query logins: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var row chromeRow
		var blob []byte
		if err := rows.Scan(&row.actionURL, &row.username, &blob); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		if len(blob) == 0 {
			continue
		}
		if len(blob) < chromeTagLen {
			e.opts.Logger.Warn("Skipping login %s (%s): password blob too short", row.actionURL, row.username)
			continue
		}

		tag := string(blob[:chromeTagLen])
		key, err := e.keyFor(tag)
		if err != nil {
			return nil, err
		}
		plain, err := chromeDecrypt(key, blob[chromeTagLen:])
		if err != nil {
			return nil, fmt.Errorf("decrypt login %s (%s): %w", row.actionURL, row.username, err)
		}

		entry := store.Entry{
			Site:      row.actionURL,
			Username:  row.username,
			OldSecret: plain,
			Identity:  store.NoIdentity{},
		}
		if err := entry.Validate(); err != nil {
			e.opts.Logger.Warn("Skipping login %s: %v", entry.Label(), err)
			continue
		}
		secret, err := newSecret(e.opts.Generator, entry.Label())
		if err != nil {
			return nil, err
		}
		e.tags[row] = tag
		entries = append(entries, entry.WithNewSecret(secret))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logins: %w", err)
	}
	return entries, nil
}

// Rewrite updates the blob of every changed entry in one transaction.
func (e *ChromeEngine) Rewrite(ctx context.Context, updated *store.Model) error {
	if e.keys == nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", dserrors.ErrLocked)
	}
	changed := updated.Changed()
	if len(changed) == 0 {
		return nil
	}
	return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", e.update(ctx, changed))
}

func (e *ChromeEngine) update(ctx context.Context, changed []store.Entry) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, chromeUpdate)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, entry := range changed {
		if _, ok := entry.Identity.(store.NoIdentity); !ok && entry.Identity != nil {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: dserrors.ErrIdentityMismatch})
			continue
		}
		row := chromeRow{actionURL: entry.Site, username: entry.Username}
		tag, ok := e.tags[row]
		if !ok {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: fmt.Errorf("no parsed login row")})
			continue
		}
		key, err := e.keyFor(tag)
		if err != nil {
			return err
		}
		blob, err := chromeEncrypt(key, tag, entry.NewSecret)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, blob, row.actionURL, row.username); err != nil {
			return fmt.Errorf("update login %s: %w", entry.Label(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database (when the engine opened it) and the keys.
func (e *ChromeEngine) Close() error {
	for _, k := range e.keys {
		k.Destroy()
	}
	if e.keyring != nil {
		e.keyring.Destroy()
	}
	if e.db != nil && e.ownsDB {
		err := e.db.Close()
		e.db = nil
		return err
	}
	return nil
}
