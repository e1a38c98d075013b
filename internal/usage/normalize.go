// Package usage maps raw WakaTime payloads into the normalized summary graph
// and persists it atomically.
package usage

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/akumotech/wakasync/internal/db/models"
)

// MalformedPayloadError reports a provider document missing a required field.
// Fatal to the one fetch, never to a whole batch run.
type MalformedPayloadError struct {
	Field string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("usage: payload missing or invalid field %q", e.Field)
}

type grandTotal struct {
	TotalSeconds *float64 `json:"total_seconds"`
}

type rangeBlock struct {
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

type breakdownEntry struct {
	Name         string  `json:"name"`
	TotalSeconds float64 `json:"total_seconds"`
	Percent      float64 `json:"percent"`
}

type dayData struct {
	GrandTotal       *grandTotal      `json:"grand_total"`
	Range            *rangeBlock      `json:"range"`
	Projects         []breakdownEntry `json:"projects"`
	Languages        []breakdownEntry `json:"languages"`
	Dependencies     []breakdownEntry `json:"dependencies"`
	Editors          []breakdownEntry `json:"editors"`
	OperatingSystems []breakdownEntry `json:"operating_systems"`
	Machines         []breakdownEntry `json:"machines"`
	Categories       []breakdownEntry `json:"categories"`
}

type todayPayload struct {
	CachedAt string   `json:"cached_at"`
	Data     *dayData `json:"data"`
}

type rangePayload struct {
	Data []dayData `json:"data"`
}

// Normalize maps the provider's status-bar document into one UsageSummary
// with its breakdown rows. Derived duration fields are computed here, once.
func Normalize(accountID uint, raw []byte) (*models.UsageSummary, error) {
	var payload todayPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &MalformedPayloadError{Field: "body"}
	}
	if payload.Data == nil {
		return nil, &MalformedPayloadError{Field: "data"}
	}
	capturedAt, err := time.Parse(time.RFC3339, payload.CachedAt)
	if err != nil {
		return nil, &MalformedPayloadError{Field: "cached_at"}
	}
	return normalizeDay(accountID, capturedAt, payload.Data)
}

// NormalizeRange maps the provider's summaries document (one entry per day)
// into summaries. Range results are returned to the caller, not persisted.
func NormalizeRange(accountID uint, raw []byte) ([]*models.UsageSummary, error) {
	var payload rangePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &MalformedPayloadError{Field: "body"}
	}
	if payload.Data == nil {
		return nil, &MalformedPayloadError{Field: "data"}
	}

	capturedAt := time.Now().UTC()
	summaries := make([]*models.UsageSummary, 0, len(payload.Data))
	for i := range payload.Data {
		s, err := normalizeDay(accountID, capturedAt, &payload.Data[i])
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func normalizeDay(accountID uint, capturedAt time.Time, data *dayData) (*models.UsageSummary, error) {
	if data.GrandTotal == nil || data.GrandTotal.TotalSeconds == nil {
		return nil, &MalformedPayloadError{Field: "grand_total"}
	}
	if data.Range == nil {
		return nil, &MalformedPayloadError{Field: "range"}
	}

	total := *data.GrandTotal.TotalSeconds
	if total < 0 {
		return nil, &MalformedPayloadError{Field: "grand_total.total_seconds"}
	}
	coveredDate, err := time.Parse("2006-01-02", data.Range.Date)
	if err != nil {
		return nil, &MalformedPayloadError{Field: "range.date"}
	}
	periodStart, err := time.Parse(time.RFC3339, data.Range.Start)
	if err != nil {
		return nil, &MalformedPayloadError{Field: "range.start"}
	}
	periodEnd, err := time.Parse(time.RFC3339, data.Range.End)
	if err != nil {
		return nil, &MalformedPayloadError{Field: "range.end"}
	}
	if periodStart.After(periodEnd) {
		return nil, &MalformedPayloadError{Field: "range"}
	}

	summary := &models.UsageSummary{
		ID:           uuid.New().String(),
		UserID:       accountID,
		CapturedAt:   capturedAt.UTC(),
		CoveredDate:  coveredDate,
		PeriodStart:  periodStart.UTC(),
		PeriodEnd:    periodEnd.UTC(),
		Timezone:     data.Range.Timezone,
		TotalSeconds: total,
	}
	applyDuration(total, &summary.Hours, &summary.Minutes, &summary.Digital, &summary.Text)
	summary.Decimal = fmt.Sprintf("%.2f", total/3600)

	for _, group := range []struct {
		category models.BreakdownCategory
		entries  []breakdownEntry
	}{
		{models.CategoryProject, data.Projects},
		{models.CategoryLanguage, data.Languages},
		{models.CategoryDependency, data.Dependencies},
		{models.CategoryEditor, data.Editors},
		{models.CategoryOperatingSystem, data.OperatingSystems},
		{models.CategoryMachine, data.Machines},
		{models.CategoryCategory, data.Categories},
	} {
		for _, entry := range group.entries {
			b := models.Breakdown{
				ID:             uuid.New().String(),
				UsageSummaryID: summary.ID,
				Category:       group.category,
				Name:           entry.Name,
				TotalSeconds:   entry.TotalSeconds,
				Percent:        entry.Percent,
			}
			applyDuration(entry.TotalSeconds, &b.Hours, &b.Minutes, &b.Digital, &b.Text)
			summary.Breakdowns = append(summary.Breakdowns, b)
		}
	}
	return summary, nil
}

// applyDuration fills the derived human-readable fields from a second count.
func applyDuration(totalSeconds float64, hours, minutes *int, digital, text *string) {
	secs := int(math.Round(totalSeconds))
	*hours = secs / 3600
	*minutes = (secs % 3600) / 60
	*digital = fmt.Sprintf("%d:%02d", *hours, *minutes)
	*text = durationText(*hours, *minutes)
}

func durationText(hours, minutes int) string {
	hr, min := "hrs", "mins"
	if hours == 1 {
		hr = "hr"
	}
	if minutes == 1 {
		min = "min"
	}
	switch {
	case hours == 0 && minutes == 0:
		return "0 mins"
	case hours == 0:
		return fmt.Sprintf("%d %s", minutes, min)
	case minutes == 0:
		return fmt.Sprintf("%d %s", hours, hr)
	default:
		return fmt.Sprintf("%d %s %d %s", hours, hr, minutes, min)
	}
}
