package model

import "strings"

// JurisdictionType classifies a node in the jurisdiction hierarchy.
type JurisdictionType string

const (
	JurisdictionFederal   JurisdictionType = "federal"
	JurisdictionState     JurisdictionType = "state"
	JurisdictionCounty    JurisdictionType = "county"
	JurisdictionMunicipal JurisdictionType = "municipal"
	JurisdictionTribal    JurisdictionType = "tribal"
)

// allowedParents lists the parent types each jurisdiction type may hang under.
// A federal jurisdiction is the root and takes no parent.
var allowedParents = map[JurisdictionType][]JurisdictionType{
	JurisdictionFederal:   nil,
	JurisdictionState:     {JurisdictionFederal},
	JurisdictionCounty:    {JurisdictionState},
	JurisdictionMunicipal: {JurisdictionCounty, JurisdictionState},
	JurisdictionTribal:    {JurisdictionState, JurisdictionFederal},
}

// JurisdictionTypes returns every known type, root first.
func JurisdictionTypes() []JurisdictionType {
	return []JurisdictionType{
		JurisdictionFederal,
		JurisdictionState,
		JurisdictionCounty,
		JurisdictionMunicipal,
		JurisdictionTribal,
	}
}

// ParseJurisdictionType maps free text (any case) onto a known type.
func ParseJurisdictionType(s string) (JurisdictionType, bool) {
	t := JurisdictionType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := allowedParents[t]; ok {
		return t, true
	}
	return "", false
}

// Valid reports whether t is a known jurisdiction type.
func (t JurisdictionType) Valid() bool {
	_, ok := allowedParents[t]
	return ok
}

// IsRoot reports whether jurisdictions of this type have no parent.
func (t JurisdictionType) IsRoot() bool {
	return t == JurisdictionFederal
}

// ValidParent reports whether a jurisdiction of type t may have a parent of
// type parent.
func (t JurisdictionType) ValidParent(parent JurisdictionType) bool {
	for _, p := range allowedParents[t] {
		if p == parent {
			return true
		}
	}
	return false
}

// Jurisdiction is a node of the federal → state → county tree.
type Jurisdiction struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Type     JurisdictionType `json:"type"`
	ParentID *int64           `json:"parent_id,omitempty"`
}

// CourtType is a node of the court-type taxonomy.
type CourtType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Level       int    `json:"level"`
	Description string `json:"description,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}
