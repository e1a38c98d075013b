package usage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/akumotech/wakasync/internal/db/models"
)

// Store appends normalized summaries to the history tables.
type Store struct {
	db *gorm.DB
}

// NewStore returns a summary store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save writes the summary and all its breakdown rows in one transaction:
// either the whole graph lands or none of it. Summaries are append-only, so
// this is always an insert.
func (s *Store) Save(ctx context.Context, summary *models.UsageSummary) error {
	breakdowns := summary.Breakdowns
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Breakdowns").Create(summary).Error; err != nil {
			return err
		}
		if len(breakdowns) == 0 {
			return nil
		}
		for i := range breakdowns {
			breakdowns[i].UsageSummaryID = summary.ID
		}
		return tx.Create(&breakdowns).Error
	})
	if err != nil {
		return fmt.Errorf("usage: persist summary for user %d: %w", summary.UserID, err)
	}
	return nil
}
