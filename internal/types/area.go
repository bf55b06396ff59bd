// Package types provides the records shared across the pipeline packages.
// This package has no dependencies on other temario packages to avoid import cycles.
package types

import "time"

// AreaStatus is the lifecycle state of a ContentArea.
type AreaStatus string

const (
	AreaPending    AreaStatus = "pending"
	AreaExtracting AreaStatus = "extracting"
	AreaAnalyzing  AreaStatus = "analyzing"
	AreaFormatting AreaStatus = "formatting"
	AreaReady      AreaStatus = "ready"
	AreaError      AreaStatus = "error"
)

// ContentArea is a unit of material being structured.
// Areas are never hard-deleted; re-ingestion reuses the same id.
type ContentArea struct {
	ID              string     `json:"id"`
	SourceURL       string     `json:"source_url"`
	Status          AreaStatus `json:"status"`
	FailedStage     AreaStatus `json:"failed_stage,omitempty"` // stage that was running when status became error
	LastError       string     `json:"last_error,omitempty"`
	TotalPages      int        `json:"total_pages"`
	TotalThemes     int        `json:"total_themes"`
	DefaultCoverRef string     `json:"default_cover_ref,omitempty"`

	// StructureVersion identifies the committed topic set. Topics written
	// with any other version are invisible to readers.
	StructureVersion string `json:"structure_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AreaUpdate is a partial update of a ContentArea. Nil fields are left unchanged.
type AreaUpdate struct {
	SourceURL        *string
	TotalPages       *int
	TotalThemes      *int
	DefaultCoverRef  *string
	StructureVersion *string
	Status           *AreaStatus
	FailedStage      *AreaStatus
	LastError        *string
}

// Apply copies the non-nil fields of u onto a.
func (u AreaUpdate) Apply(a *ContentArea) {
	if u.SourceURL != nil {
		a.SourceURL = *u.SourceURL
	}
	if u.TotalPages != nil {
		a.TotalPages = *u.TotalPages
	}
	if u.TotalThemes != nil {
		a.TotalThemes = *u.TotalThemes
	}
	if u.DefaultCoverRef != nil {
		a.DefaultCoverRef = *u.DefaultCoverRef
	}
	if u.StructureVersion != nil {
		a.StructureVersion = *u.StructureVersion
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.FailedStage != nil {
		a.FailedStage = *u.FailedStage
	}
	if u.LastError != nil {
		a.LastError = *u.LastError
	}
}

// Page is one OCR-extracted page. Unique on (AreaID, PageNumber).
type Page struct {
	AreaID     string `json:"area_id"`
	PageNumber int    `json:"page_number"` // 1-based
	Text       string `json:"text"`
}

// PageRange is an inclusive page interval. Zero bounds are open.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AllPages matches every page of an area.
var AllPages = PageRange{}

// Clamp limits r to the pages of a document with total pages. A total of
// zero leaves r unchanged.
func (r PageRange) Clamp(total int) PageRange {
	if total <= 0 {
		return r
	}
	if r.End == 0 || r.End > total {
		r.End = total
	}
	return r
}

// Contains reports whether page n lies inside the range.
func (r PageRange) Contains(n int) bool {
	if r.Start > 0 && n < r.Start {
		return false
	}
	if r.End > 0 && n > r.End {
		return false
	}
	return true
}
