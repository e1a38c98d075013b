package models

import "time"

// BreakdownCategory tags one categorized slice of a day's usage. The
// categories share one record shape; the tag keeps per-category grouping at
// read time.
type BreakdownCategory string

const (
	CategoryProject         BreakdownCategory = "project"
	CategoryLanguage        BreakdownCategory = "language"
	CategoryDependency      BreakdownCategory = "dependency"
	CategoryEditor          BreakdownCategory = "editor"
	CategoryOperatingSystem BreakdownCategory = "operating_system"
	CategoryMachine         BreakdownCategory = "machine"
	CategoryCategory        BreakdownCategory = "category"
)

// Categories lists every breakdown category in a stable order.
var Categories = []BreakdownCategory{
	CategoryProject,
	CategoryLanguage,
	CategoryDependency,
	CategoryEditor,
	CategoryOperatingSystem,
	CategoryMachine,
	CategoryCategory,
}

// UsageSummary is one day's aggregated WakaTime totals for one user.
// Rows are append-only: a new fetch inserts a new row, nothing updates one.
type UsageSummary struct {
	ID          string    `gorm:"primaryKey" json:"id"` // UUID
	UserID      uint      `gorm:"index:idx_user_captured" json:"user_id"`
	CapturedAt  time.Time `gorm:"index:idx_user_captured" json:"captured_at"`
	CoveredDate time.Time `json:"covered_date"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Timezone    string    `json:"timezone"`

	TotalSeconds float64 `json:"total_seconds"`
	// Derived duration fields, computed once at normalization time.
	Hours   int    `json:"hours"`
	Minutes int    `json:"minutes"`
	Digital string `json:"digital"` // "H:MM"
	Decimal string `json:"decimal"` // "H.MM"
	Text    string `json:"text"`    // "3 hrs 22 mins"

	Breakdowns []Breakdown `gorm:"foreignKey:UsageSummaryID" json:"breakdowns"`
	CreatedAt  time.Time   `json:"-"`
}

// Breakdown is one named slice (a project, a language, ...) of a summary.
// Breakdown rows are owned by their summary and persisted with it atomically.
type Breakdown struct {
	ID             string            `gorm:"primaryKey" json:"id"` // UUID
	UsageSummaryID string            `gorm:"index" json:"-"`
	Category       BreakdownCategory `gorm:"index" json:"category"`
	Name           string            `json:"name"`

	TotalSeconds float64 `json:"total_seconds"`
	Percent      float64 `json:"percent"`
	Hours        int     `json:"hours"`
	Minutes      int     `json:"minutes"`
	Digital      string  `json:"digital"`
	Text         string  `json:"text"`
}
