package hierarchy

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/court-inventory/internal/model"
)

// ValidateParent checks that a jurisdiction of type child may hang under
// parent (nil for a root).
func ValidateParent(child model.JurisdictionType, parent *model.Jurisdiction) error {
	if !child.Valid() {
		return eris.Errorf("hierarchy: unknown jurisdiction type %q", child)
	}
	if parent == nil {
		if !child.IsRoot() {
			return eris.Errorf("hierarchy: %s jurisdiction requires a parent", child)
		}
		return nil
	}
	if !child.ValidParent(parent.Type) {
		return eris.Errorf("hierarchy: %s jurisdiction cannot have %s parent %q", child, parent.Type, parent.Name)
	}
	return nil
}

// ValidateTree checks a complete set of jurisdictions: every parent exists,
// types are consistent with their parents, names are unique per (type,
// parent), and every chain is acyclic and ends at a federal root.
func ValidateTree(nodes []model.Jurisdiction) error {
	byID := make(map[int64]model.Jurisdiction, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var problems []string
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		var parent *model.Jurisdiction
		var parentKey int64
		if n.ParentID != nil {
			p, ok := byID[*n.ParentID]
			if !ok {
				problems = append(problems, fmt.Sprintf("%q references missing parent %d", n.Name, *n.ParentID))
				continue
			}
			parent = &p
			parentKey = p.ID
		}
		if err := ValidateParent(n.Type, parent); err != nil {
			problems = append(problems, strings.TrimPrefix(err.Error(), "hierarchy: "))
		}

		key := fmt.Sprintf("%s|%s|%d", FoldName(n.Name), n.Type, parentKey)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("duplicate %s jurisdiction %q", n.Type, n.Name))
		}
		seen[key] = true

		if err := checkChain(n, byID); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("hierarchy: invalid tree: %s", strings.Join(problems, "; "))
	}
	return nil
}

func checkChain(n model.Jurisdiction, byID map[int64]model.Jurisdiction) error {
	visited := map[int64]bool{n.ID: true}
	cur := n
	for cur.ParentID != nil {
		p, ok := byID[*cur.ParentID]
		if !ok {
			return nil // reported as a missing parent
		}
		if visited[p.ID] {
			return eris.Errorf("cycle through %q", n.Name)
		}
		visited[p.ID] = true
		cur = p
	}
	if cur.Type != model.JurisdictionFederal {
		return eris.Errorf("%q does not terminate at a federal root", n.Name)
	}
	return nil
}
