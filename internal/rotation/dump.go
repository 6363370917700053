package rotation

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/systmms/passup/pkg/store"
)

type dumpEntry struct {
	Site      string `yaml:"site"`
	Username  string `yaml:"username"`
	OldSecret string `yaml:"old_password"`
	NewSecret string `yaml:"new_password"`
	Rotated   bool   `yaml:"rotated"`
	Identity  string `yaml:"identity,omitempty"`
}

type dumpDoc struct {
	Source  string      `yaml:"source"`
	Path    string      `yaml:"path,omitempty"`
	Entries []dumpEntry `yaml:"entries"`
}

// DumpModel writes every entry of model, secrets included, as YAML. It is
// the last resort when a container could not be rewritten after live
// passwords were already changed.
func DumpModel(w io.Writer, source, path string, model *store.Model) error {
	doc := dumpDoc{Source: source, Path: path}
	for _, e := range model.Entries() {
		d := dumpEntry{
			Site:      e.Site,
			Username:  e.Username,
			OldSecret: e.OldSecret,
			NewSecret: e.NewSecret,
			Rotated:   e.Changed(),
		}
		if e.Identity != nil {
			if _, none := e.Identity.(store.NoIdentity); !none {
				d.Identity = e.Identity.Kind() + ":" + e.Identity.String()
			}
		}
		doc.Entries = append(doc.Entries, d)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return enc.Close()
}
