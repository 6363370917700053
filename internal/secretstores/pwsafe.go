package secretstores

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/internal/secretstores/psafe3"
	"github.com/systmms/passup/internal/secure"
	"github.com/systmms/passup/pkg/store"
)

// backupSuffix names the original container while its replacement is written.
const backupSuffix = ".passup-orig"

// PWSafeEngine rotates records of a Password Safe v3 container. It keeps
// every field it reads so the rewrite only differs in rotated passwords.
type PWSafeEngine struct {
	opts Options

	passphrase *secure.SecureBuffer
	reader     *psafe3.Reader

	// header holds the header fields in file order, without the terminator.
	header []psafe3.Field
	// records holds every record's fields in file order, without terminators.
	records [][]psafe3.Field
}

var _ store.Engine = (*PWSafeEngine)(nil)

// NewPWSafeEngine returns an engine for the container at opts.Path.
func NewPWSafeEngine(opts Options) *PWSafeEngine {
	return &PWSafeEngine{opts: opts.withDefaults()}
}

func (e *PWSafeEngine) Name() string { return e.opts.Name }
func (e *PWSafeEngine) Path() string { return e.opts.Path }

// Unlock prompts until the container's stretched key matches.
func (e *PWSafeEngine) Unlock(ctx context.Context) error {
	raw, err := os.ReadFile(e.opts.Path)
	if err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "open", err)
	}

	err = promptUnlock(ctx, e.opts, func(pass []byte) error {
		r, err := psafe3.NewReader(bytes.NewReader(raw), pass)
		if errors.Is(err, psafe3.ErrInvalidPassword) {
			return fmt.Errorf("%w: %v", dserrors.ErrWrongPassphrase, err)
		}
		if err != nil {
			return err
		}
		sealed, err := secure.NewSecureBuffer(pass)
		if err != nil {
			return err
		}
		e.reader = r
		e.passphrase = sealed
		return nil
	})
	return dserrors.WrapSource(e.opts.Name, e.opts.Path, "unlock", err)
}

// Parse reads the header and every record, then verifies the HMAC. Records
// with a URL, a username, a password and a UUID become entries.
func (e *PWSafeEngine) Parse(ctx context.Context) (*store.Model, error) {
	if e.reader == nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", dserrors.ErrLocked)
	}
	entries, err := e.parse(ctx)
	if err != nil {
		return nil, dserrors.WrapSource(e.opts.Name, e.opts.Path, "parse", err)
	}
	e.opts.Logger.Debug("Parsed %d entries from %s", len(entries), e.opts.Name)
	return store.New(entries), nil
}

func (e *PWSafeEngine) parse(ctx context.Context) ([]store.Entry, error) {
	first, err := e.reader.ReadField()
	if err != nil {
		return nil, fmt.Errorf("read version field: %w", err)
	}
	if first.Type != psafe3.FieldVersion {
		return nil, fmt.Errorf("%w: header starts with field type 0x%02x, want version", psafe3.ErrCorrupt, first.Type)
	}
	if v, ok := psafe3.Version(first.Data); ok {
		e.opts.Logger.Debug("%s uses format version 0x%04x", e.opts.Name, v)
	}
	e.header = []psafe3.Field{first}

	for {
		f, err := e.reader.ReadField()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: header is not terminated", psafe3.ErrCorrupt)
		}
		if err != nil {
			return nil, err
		}
		if f.Type == psafe3.FieldEnd {
			break
		}
		e.header = append(e.header, f)
	}

	var entries []store.Entry
	var record []psafe3.Field
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := e.reader.ReadField()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if f.Type != psafe3.FieldEnd {
			record = append(record, f)
			continue
		}

		e.records = append(e.records, record)
		entry, ok := e.entryFrom(record)
		record = nil
		if !ok {
			continue
		}
		secret, err := newSecret(e.opts.Generator, entry.Label())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry.WithNewSecret(secret))
	}
	if len(record) > 0 {
		return nil, fmt.Errorf("%w: last record is not terminated", psafe3.ErrCorrupt)
	}
	if err := e.reader.Verify(); err != nil {
		return nil, err
	}
	return entries, nil
}

// entryFrom builds an Entry from one record's fields.
func (e *PWSafeEngine) entryFrom(record []psafe3.Field) (store.Entry, bool) {
	var site, user, pass, title string
	var id []byte
	for _, f := range record {
		switch f.Type {
		case psafe3.FieldURL:
			site = string(f.Data)
		case psafe3.FieldUsername:
			user = string(f.Data)
		case psafe3.FieldPassword:
			pass = string(f.Data)
		case psafe3.FieldUUID:
			id = f.Data
		case psafe3.FieldTitle:
			title = string(f.Data)
		}
	}
	if site == "" || user == "" || pass == "" {
		e.opts.Logger.Warn("Skipping Password Safe record %q: missing URL, username or password", title)
		return store.Entry{}, false
	}
	u, err := uuid.FromBytes(id)
	if err != nil {
		e.opts.Logger.Warn("Skipping Password Safe record %q: bad record uuid: %v", title, err)
		return store.Entry{}, false
	}
	return store.Entry{
		Site:      store.NormalizeURL(site),
		Username:  user,
		OldSecret: pass,
		Identity:  store.PWSafeIdentity(u),
	}, true
}

// Rewrite replays the header and every record, substituting the password of
// rotated records. The original file is kept aside until the new one is
// complete and restored if writing fails.
func (e *PWSafeEngine) Rewrite(ctx context.Context, updated *store.Model) error {
	if e.reader == nil || e.header == nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", dserrors.ErrLocked)
	}

	rotated := make(map[uuid.UUID]string)
	for _, entry := range updated.Changed() {
		id, err := store.AsPWSafe(entry.Identity)
		if err != nil {
			e.opts.Logger.Error("%v", &dserrors.EntryError{Site: entry.Site, Username: entry.Username, Err: err})
			continue
		}
		rotated[uuid.UUID(id)] = entry.NewSecret
	}
	if err := ctx.Err(); err != nil {
		return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", err)
	}

	return dserrors.WrapSource(e.opts.Name, e.opts.Path, "rewrite", e.replaceFile(rotated))
}

func (e *PWSafeEngine) replaceFile(rotated map[uuid.UUID]string) error {
	info, err := os.Stat(e.opts.Path)
	if err != nil {
		return err
	}
	backup := e.opts.Path + backupSuffix
	if err := os.Rename(e.opts.Path, backup); err != nil {
		return fmt.Errorf("move original aside: %w", err)
	}

	if err := e.writeFile(info.Mode().Perm(), rotated); err != nil {
		_ = os.Remove(e.opts.Path)
		if rerr := os.Rename(backup, e.opts.Path); rerr != nil {
			return fmt.Errorf("%w (original left at %s: %v)", err, backup, rerr)
		}
		return err
	}
	if err := os.Remove(backup); err != nil {
		e.opts.Logger.Warn("Could not remove %s: %v", backup, err)
	}
	return nil
}

func (e *PWSafeEngine) writeFile(mode os.FileMode, rotated map[uuid.UUID]string) error {
	pass, err := e.passphrase.RevealBytes()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(e.opts.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	w, err := psafe3.NewWriter(buf, pass, e.reader.Iterations())
	if err != nil {
		return err
	}

	fields := append([]psafe3.Field(nil), e.header...)
	fields = append(fields, psafe3.Field{Type: psafe3.FieldEnd})
	for _, record := range e.records {
		fields = append(fields, substitutePassword(record, rotated)...)
		fields = append(fields, psafe3.Field{Type: psafe3.FieldEnd})
	}
	for _, field := range fields {
		if err := w.WriteField(field); err != nil {
			return err
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return f.Close()
}

// substitutePassword returns record with its password payload replaced when
// the record's uuid was rotated. All other fields are returned unchanged.
func substitutePassword(record []psafe3.Field, rotated map[uuid.UUID]string) []psafe3.Field {
	var secret string
	var found bool
	for _, f := range record {
		if f.Type != psafe3.FieldUUID {
			continue
		}
		if id, err := uuid.FromBytes(f.Data); err == nil {
			secret, found = rotated[id]
		}
		break
	}
	if !found {
		return record
	}

	out := make([]psafe3.Field, len(record))
	for i, f := range record {
		if f.Type == psafe3.FieldPassword {
			f = psafe3.Field{Type: f.Type, Data: []byte(secret)}
		}
		out[i] = f
	}
	return out
}

// Close wipes the held passphrase.
func (e *PWSafeEngine) Close() error {
	if e.passphrase != nil {
		e.passphrase.Destroy()
	}
	e.reader = nil
	return nil
}
