package service

import (
	"context"
	"fmt"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/logger"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/google/uuid"
)

// SeederService creates the pending jobs for a backfill: one job per
// (shop, object type, calendar day). Failed jobs are re-seeded the same
// way; the scheduler itself never retries a failure.
type SeederService struct {
	jobs *repository.JobRepository
}

// NewSeederService creates a new SeederService.
func NewSeederService(jobs *repository.JobRepository) *SeederService {
	return &SeederService{jobs: jobs}
}

// SeedRequest describes one backfill. Empty ObjectTypes means every known
// type; dates are calendar dates, both inclusive.
type SeedRequest struct {
	Shops       []string
	ObjectTypes []domain.ObjectType
	StartDate   time.Time
	EndDate     time.Time
}

// Seed creates the missing jobs and returns how many were created. Units of
// work that already have a job in any status are skipped, so re-seeding an
// overlapping range is safe.
func (s *SeederService) Seed(ctx context.Context, req SeedRequest) (int, error) {
	if req.EndDate.Before(req.StartDate) {
		return 0, fmt.Errorf("end date %s before start date %s",
			req.EndDate.Format("2006-01-02"), req.StartDate.Format("2006-01-02"))
	}
	types := req.ObjectTypes
	if len(types) == 0 {
		types = domain.AllObjectTypes()
	}
	for _, t := range types {
		if !t.IsValid() {
			return 0, fmt.Errorf("unknown object type %q", t)
		}
	}

	created := 0
	for day := metricDateKey(req.StartDate); !day.After(metricDateKey(req.EndDate)); day = day.AddDate(0, 0, 1) {
		start := day
		end := day.AddDate(0, 0, 1)
		for _, shop := range req.Shops {
			for _, t := range types {
				exists, err := s.jobs.Exists(ctx, shop, t, start, end)
				if err != nil {
					return created, err
				}
				if exists {
					continue
				}
				job := &domain.SyncJob{
					ID:         uuid.New().String(),
					Shop:       shop,
					ObjectType: t,
					StartDate:  start,
					EndDate:    end,
					Status:     domain.JobStatusPending,
				}
				if err := s.jobs.Create(ctx, job); err != nil {
					return created, fmt.Errorf("seed job for %s/%s/%s: %w",
						shop, t, start.Format("2006-01-02"), err)
				}
				created++
			}
		}
	}

	logger.With(logger.Fields{logger.FieldCount: created}).
		Info(ctx, "Seeded backfill jobs")
	return created, nil
}
