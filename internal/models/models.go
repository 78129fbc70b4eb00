package models

import (
	"database/sql"
	"time"
)

type Location struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	Region    string   `json:"region,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Metric struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Unit        string `json:"unit"`
	Description string `json:"description,omitempty"`
}

// Label returns the display name, falling back to the raw metric name.
func (m Metric) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

type ApplyRecord struct {
	ID           int64
	SessionID    string
	Token        uint64
	AnalysisType string // "raw", "weighted" or "trends"
	Outcome      string // "ok", "failed" or "superseded"
	Query        string
	DurationMS   int64
	Error        sql.NullString
	AppliedAt    time.Time
}
