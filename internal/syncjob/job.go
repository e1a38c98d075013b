// Package syncjob runs the nightly usage sync across all linked accounts.
package syncjob

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/akumotech/wakasync/internal/db/models"
	"github.com/akumotech/wakasync/internal/usage"
)

// AccountLister enumerates users holding stored credentials.
type AccountLister interface {
	ListLinked(ctx context.Context) ([]models.User, error)
}

// Fetcher pulls one account's usage document for the current day.
type Fetcher interface {
	FetchToday(ctx context.Context, accountID uint) (json.RawMessage, error)
}

// SummaryStore persists one normalized summary atomically.
type SummaryStore interface {
	Save(ctx context.Context, summary *models.UsageSummary) error
}

// AccountFailure records why one account's sync failed.
type AccountFailure struct {
	UserID uint
	Email  string
	Err    error
}

// Result tallies one run.
type Result struct {
	Processed int
	Failed    int
	Failures  []AccountFailure
	Elapsed   time.Duration
}

// Job fetches, normalizes and persists today's usage for every linked
// account. Each account is its own unit of work: any failure is recorded and
// the run moves on, so a broken credential or a flaky payload for one user
// can never starve the rest.
type Job struct {
	accounts AccountLister
	fetcher  Fetcher
	store    SummaryStore
	workers  int
}

// New builds a job with a bounded number of concurrent in-flight accounts.
func New(accounts AccountLister, fetcher Fetcher, store SummaryStore, workers int) *Job {
	if workers < 1 {
		workers = 1
	}
	return &Job{accounts: accounts, fetcher: fetcher, store: store, workers: workers}
}

// Run executes one full sync pass and reports the tally.
func (j *Job) Run(ctx context.Context) Result {
	started := time.Now()
	log.Printf("🔄 Usage sync starting")

	users, err := j.accounts.ListLinked(ctx)
	if err != nil {
		log.Printf("❌ Usage sync aborted, cannot list linked accounts: %v", err)
		return Result{Elapsed: time.Since(started)}
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, j.workers)
		result Result
	)
	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(user models.User) {
			defer wg.Done()
			defer func() { <-sem }()

			err := j.syncAccount(ctx, user)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, AccountFailure{
					UserID: user.ID,
					Email:  user.Email,
					Err:    err,
				})
				log.Printf("⚠️ Usage sync failed for %s: %v", user.Email, err)
				return
			}
			result.Processed++
		}(user)
	}
	wg.Wait()

	result.Elapsed = time.Since(started)
	log.Printf("✅ Usage sync complete: %d processed, %d failed in %s",
		result.Processed, result.Failed, result.Elapsed.Round(time.Millisecond))
	return result
}

// syncAccount is one account's fetch → normalize → persist unit of work,
// with its own storage transaction inside Save.
func (j *Job) syncAccount(ctx context.Context, user models.User) error {
	raw, err := j.fetcher.FetchToday(ctx, user.ID)
	if err != nil {
		return err
	}
	summary, err := usage.Normalize(user.ID, raw)
	if err != nil {
		return err
	}
	return j.store.Save(ctx, summary)
}
