package secretstores

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tobischo/gokeepasslib/v3"

	dserrors "github.com/systmms/passup/internal/errors"
	"github.com/systmms/passup/pkg/store"
)

// maxRefHops bounds a reference chain even when the visited set misses a loop.
const maxRefHops = 1000

var refPattern = regexp.MustCompile(`^\{REF:([TUPAN])@I:([0-9A-Fa-f]{32})\}$`)

// refFields maps the one-letter reference field codes to KeePass keys.
var refFields = map[string]string{
	"T": "Title",
	"U": "UserName",
	"P": "Password",
	"A": "URL",
	"N": "Notes",
}

// refResolver follows KeePass field references ({REF:P@I:<uuid>}).
type refResolver struct {
	byID map[string]*gokeepasslib.Entry
}

func newRefResolver(index map[store.KDBXIdentity]*gokeepasslib.Entry) *refResolver {
	r := &refResolver{byID: make(map[string]*gokeepasslib.Entry, len(index))}
	for id, e := range index {
		r.byID[id.String()] = e
	}
	return r
}

// resolve returns the literal value value stands for. origin names the field
// being resolved ("P@<uuid>") so that a chain leading back to it is a cycle.
func (r *refResolver) resolve(origin, value string) (string, error) {
	visited := map[string]bool{origin: true}
	for hop := 0; hop < maxRefHops; hop++ {
		m := refPattern.FindStringSubmatch(value)
		if m == nil {
			return value, nil
		}
		code, id := m[1], strings.ToUpper(m[2])
		key := code + "@" + id
		if visited[key] {
			return "", fmt.Errorf("%w: %s", dserrors.ErrCyclicReference, value)
		}
		visited[key] = true

		target, ok := r.byID[id]
		if !ok {
			return "", fmt.Errorf("%w: %s", dserrors.ErrUnresolvedReference, value)
		}
		value = target.GetContent(refFields[code])
	}
	return "", fmt.Errorf("%w: chain longer than %d hops", dserrors.ErrCyclicReference, maxRefHops)
}

// refKey is the visited-set key of field on the entry with id.
func refKey(code string, id store.KDBXIdentity) string {
	return code + "@" + id.String()
}
