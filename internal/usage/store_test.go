package usage

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/akumotech/wakasync/internal/db/models"
)

var memDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:usage%d?mode=memory&cache=shared", atomic.AddInt64(&memDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.UsageSummary{}, &models.Breakdown{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSave(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	summary, err := Normalize(7, []byte(samplePayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := store.Save(context.Background(), summary); err != nil {
		t.Fatalf("save: %v", err)
	}

	var loaded models.UsageSummary
	if err := db.Preload("Breakdowns").First(&loaded, "id = ?", summary.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TotalSeconds != summary.TotalSeconds {
		t.Errorf("total seconds = %v", loaded.TotalSeconds)
	}
	if len(loaded.Breakdowns) != len(summary.Breakdowns) {
		t.Errorf("expected %d breakdown rows, got %d", len(summary.Breakdowns), len(loaded.Breakdowns))
	}
}

func TestSave_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first, _ := Normalize(7, []byte(samplePayload))
	second, _ := Normalize(7, []byte(samplePayload))
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	var count int64
	db.Model(&models.UsageSummary{}).Where("user_id = ?", 7).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 history rows, got %d", count)
	}
}

// A failure after the summary row is written must roll the whole graph back:
// no summary without its breakdowns, no orphaned breakdowns.
func TestSave_Atomic(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	summary, err := Normalize(7, []byte(samplePayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// Force a mid-transaction failure: a duplicate breakdown primary key
	// makes the breakdown insert fail after the summary insert succeeded.
	summary.Breakdowns[1].ID = summary.Breakdowns[0].ID

	if err := store.Save(context.Background(), summary); err == nil {
		t.Fatal("expected save to fail")
	}

	var summaries, breakdowns int64
	db.Model(&models.UsageSummary{}).Count(&summaries)
	db.Model(&models.Breakdown{}).Count(&breakdowns)
	if summaries != 0 || breakdowns != 0 {
		t.Fatalf("partial write survived: %d summaries, %d breakdowns", summaries, breakdowns)
	}
}
