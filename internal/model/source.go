package model

import "time"

// DefaultUpdateFrequency is the re-check interval given to new sources.
const DefaultUpdateFrequency = 24 * time.Hour

// CourtSource is a directory URL polled for court listings.
type CourtSource struct {
	ID               int64            `json:"id"`
	JurisdictionID   int64            `json:"jurisdiction_id"`
	JurisdictionName string           `json:"jurisdiction_name,omitempty"`
	JurisdictionType JurisdictionType `json:"jurisdiction_type,omitempty"`
	URL              string           `json:"source_url"`
	SourceType       string           `json:"source_type,omitempty"`
	IsActive         bool             `json:"is_active"`
	LastChecked      *time.Time       `json:"last_checked,omitempty"`
	LastUpdated      *time.Time       `json:"last_updated,omitempty"`
	UpdateFrequency  time.Duration    `json:"update_frequency"`
}
