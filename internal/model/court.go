package model

import (
	"strings"
	"time"
)

// CourtStatus is the operating status of a court.
type CourtStatus string

const (
	CourtOpen    CourtStatus = "Open"
	CourtClosed  CourtStatus = "Closed"
	CourtLimited CourtStatus = "Limited Operations"
)

// CourtStatuses returns the allowed status labels in display order.
func CourtStatuses() []CourtStatus {
	return []CourtStatus{CourtOpen, CourtClosed, CourtLimited}
}

// ParseCourtStatus maps a model- or user-supplied label onto a CourtStatus.
// Matching ignores case and surrounding whitespace; "limited" alone is
// accepted as shorthand for Limited Operations.
func ParseCourtStatus(s string) (CourtStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return CourtOpen, true
	case "closed":
		return CourtClosed, true
	case "limited operations", "limited":
		return CourtLimited, true
	default:
		return "", false
	}
}

// ContactInfo holds the published contact details of a court.
type ContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
	Hours string `json:"hours,omitempty"`
}

// IsZero reports whether no contact field is set.
func (c *ContactInfo) IsZero() bool {
	return c == nil || (c.Phone == "" && c.Email == "" && c.Hours == "")
}

// Court is a persisted court record. Identity is (Name, JurisdictionID).
type Court struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Type              string       `json:"type"`
	CourtTypeID       *int64       `json:"court_type_id,omitempty"`
	URL               string       `json:"url,omitempty"`
	JurisdictionID    int64        `json:"jurisdiction_id"`
	JurisdictionName  string       `json:"jurisdiction_name,omitempty"`
	Status            CourtStatus  `json:"status"`
	Lat               *float64     `json:"lat,omitempty"`
	Lon               *float64     `json:"lon,omitempty"`
	Address           string       `json:"address,omitempty"`
	ContactInfo       *ContactInfo `json:"contact_info,omitempty"`
	MaintenanceNotice string       `json:"maintenance_notice,omitempty"`
	MaintenanceStart  *time.Time   `json:"maintenance_start,omitempty"`
	MaintenanceEnd    *time.Time   `json:"maintenance_end,omitempty"`
	LastUpdated       time.Time    `json:"last_updated"`
}

// HasLocation reports whether both coordinates are set.
func (c Court) HasLocation() bool {
	return c.Lat != nil && c.Lon != nil
}

// CourtCandidate is a best-effort court record proposed by the extraction
// stage. Fields the model could not infer are left empty.
type CourtCandidate struct {
	Name             string       `json:"name"`
	Type             string       `json:"type,omitempty"`
	Jurisdiction     string       `json:"jurisdiction,omitempty"`
	JurisdictionType string       `json:"jurisdiction_type,omitempty"`
	Address          string       `json:"address,omitempty"`
	URL              string       `json:"url,omitempty"`
	Status           string       `json:"status,omitempty"`
	ContactInfo      *ContactInfo `json:"contact_info,omitempty"`
	Divisions        []string     `json:"divisions,omitempty"`
	Services         []string     `json:"services,omitempty"`
}

// Verification is the classification returned by the verification stage.
type Verification struct {
	Verified          bool         `json:"verified"`
	Confidence        float64      `json:"confidence"`
	CourtType         string       `json:"court_type,omitempty"`
	Status            string       `json:"status,omitempty"`
	Address           string       `json:"address,omitempty"`
	ContactInfo       *ContactInfo `json:"contact_info,omitempty"`
	MaintenanceNotice string       `json:"maintenance_notice,omitempty"`
	MaintenanceStart  *time.Time   `json:"maintenance_start,omitempty"`
	MaintenanceEnd    *time.Time   `json:"maintenance_end,omitempty"`
	AdditionalInfo    string       `json:"additional_info,omitempty"`
}

// VerifiedCourt is an accepted candidate ready for persistence.
type VerifiedCourt struct {
	Name              string
	Type              string
	CourtTypeID       *int64
	URL               string
	Status            CourtStatus
	Address           string
	Lat               *float64
	Lon               *float64
	ContactInfo       *ContactInfo
	MaintenanceNotice string
	MaintenanceStart  *time.Time
	MaintenanceEnd    *time.Time
	Confidence        float64
}
