package hierarchy

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/court-inventory/internal/model"
)

var folder = cases.Fold()

// FoldName normalizes a name for comparison: case-folded with runs of
// whitespace collapsed.
func FoldName(s string) string {
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// Taxonomy is an in-memory view of the court-type tree.
type Taxonomy struct {
	types  []model.CourtType
	byName map[string]model.CourtType
}

// NewTaxonomy indexes types by folded name. A label also matches with or
// without a trailing plural "s", so "District Court" finds "District Courts".
func NewTaxonomy(types []model.CourtType) *Taxonomy {
	t := &Taxonomy{types: types, byName: make(map[string]model.CourtType, len(types)*2)}
	for _, ct := range types {
		key := FoldName(ct.Name)
		t.byName[key] = ct
		if s := singular(key); s != key {
			if _, exists := t.byName[s]; !exists {
				t.byName[s] = ct
			}
		}
	}
	return t
}

// Match resolves a free-text label to a taxonomy node.
func (t *Taxonomy) Match(label string) (model.CourtType, bool) {
	if t == nil {
		return model.CourtType{}, false
	}
	key := FoldName(label)
	if key == "" {
		return model.CourtType{}, false
	}
	if ct, ok := t.byName[key]; ok {
		return ct, true
	}
	ct, ok := t.byName[singular(key)]
	return ct, ok
}

// Names returns every type name in taxonomy order.
func (t *Taxonomy) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.types))
	for i, ct := range t.types {
		names[i] = ct.Name
	}
	return names
}

// Types returns the taxonomy nodes.
func (t *Taxonomy) Types() []model.CourtType {
	if t == nil {
		return nil
	}
	return t.types
}

// singular drops the plural "s" from the head noun, handling the
// "Courts of Appeals" form as well as a trailing "Courts".
func singular(key string) string {
	if head, tail, ok := strings.Cut(key, " of "); ok && strings.HasSuffix(head, "s") {
		return strings.TrimSuffix(head, "s") + " of " + tail
	}
	return strings.TrimSuffix(key, "s")
}
