package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/google/uuid"
)

func makeJob(shop string, objectType domain.ObjectType, day time.Time) *domain.SyncJob {
	return &domain.SyncJob{
		ID:         uuid.New().String(),
		Shop:       shop,
		ObjectType: objectType,
		StartDate:  day,
		EndDate:    day.AddDate(0, 0, 1),
		Status:     domain.JobStatusPending,
	}
}

func TestClaimIsExclusive(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job := makeJob("shop-a", domain.ObjectTypeOrders, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claimed, err := repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = repo.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Error("expected second claim to lose")
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
}

func TestFindPendingDependencyOrder(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of dependency order.
	for _, objectType := range []domain.ObjectType{
		domain.ObjectTypeRefunds,
		domain.ObjectTypeShippingDiscounts,
		domain.ObjectTypeOrders,
		domain.ObjectTypeSKUs,
	} {
		if err := repo.Create(ctx, makeJob("shop-a", objectType, day)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	jobs, err := repo.FindPending(ctx, 10, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(jobs))
	}

	if jobs[0].ObjectType != domain.ObjectTypeOrders {
		t.Errorf("expected orders first, got %s", jobs[0].ObjectType)
	}
	if jobs[1].ObjectType != domain.ObjectTypeSKUs {
		t.Errorf("expected skus second, got %s", jobs[1].ObjectType)
	}
	for _, job := range jobs[2:] {
		if job.ObjectType.Rank() != 3 {
			t.Errorf("expected rank-3 type last, got %s", job.ObjectType)
		}
	}
}

func TestFindPendingOrdersByDateWithinRank(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	later := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, makeJob("shop-a", domain.ObjectTypeOrders, later)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Create(ctx, makeJob("shop-a", domain.ObjectTypeOrders, earlier)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := repo.FindPending(ctx, 10, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if !jobs[0].StartDate.Equal(earlier) {
		t.Errorf("expected earlier date first, got %s", jobs[0].StartDate)
	}
}

func TestHasIncompletePrerequisite(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)

	orders := makeJob("shop-a", domain.ObjectTypeOrders, day)
	if err := repo.Create(ctx, orders); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocked, err := repo.HasIncompletePrerequisite(ctx, "shop-a", []domain.ObjectType{domain.ObjectTypeOrders}, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !blocked {
		t.Error("expected pending prerequisite to block")
	}

	// Completing the prerequisite unblocks.
	if _, err := repo.Claim(ctx, orders.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkCompleted(ctx, orders.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocked, err = repo.HasIncompletePrerequisite(ctx, "shop-a", []domain.ObjectType{domain.ObjectTypeOrders}, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blocked {
		t.Error("expected completed prerequisite not to block")
	}

	// A different shop's jobs never block.
	if err := repo.Create(ctx, makeJob("shop-b", domain.ObjectTypeOrders, day)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocked, err = repo.HasIncompletePrerequisite(ctx, "shop-a", []domain.ObjectType{domain.ObjectTypeOrders}, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blocked {
		t.Error("expected other shop's job not to block")
	}

	// A non-overlapping date range never blocks.
	otherDay := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, makeJob("shop-a", domain.ObjectTypeOrders, otherDay)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocked, err = repo.HasIncompletePrerequisite(ctx, "shop-a", []domain.ObjectType{domain.ObjectTypeOrders}, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blocked {
		t.Error("expected non-overlapping job not to block")
	}
}

func TestFailedPrerequisiteBlocks(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	orders := makeJob("shop-a", domain.ObjectTypeOrders, day)
	if err := repo.Create(ctx, orders); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Claim(ctx, orders.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkFailed(ctx, orders.ID, "upstream exploded"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocked, err := repo.HasIncompletePrerequisite(ctx, "shop-a", []domain.ObjectType{domain.ObjectTypeOrders}, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !blocked {
		t.Error("expected failed prerequisite to keep blocking dependents")
	}
}

func TestRequeueKeepsCursorAndAccumulatesRecords(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job := makeJob("shop-a", domain.ObjectTypeRefunds, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Requeue(ctx, job.ID, "order-50", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusPending {
		t.Errorf("expected status pending, got %s", got.Status)
	}
	if got.ProgressCursor != "order-50" {
		t.Errorf("expected cursor order-50, got %q", got.ProgressCursor)
	}
	if got.RecordsProcessed != 50 {
		t.Errorf("expected 50 records, got %d", got.RecordsProcessed)
	}
	if got.ErrorMessage != "" {
		t.Errorf("expected no error message, got %q", got.ErrorMessage)
	}

	// Second leg completes and clears the cursor.
	if _, err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkCompleted(ctx, job.ID, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err = repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.ProgressCursor != "" {
		t.Errorf("expected cursor cleared, got %q", got.ProgressCursor)
	}
	if got.RecordsProcessed != 80 {
		t.Errorf("expected 80 records total, got %d", got.RecordsProcessed)
	}
}

func TestMarkFailedTruncatesError(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job := makeJob("shop-a", domain.ObjectTypeOrders, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	long := strings.Repeat("x", maxErrorLen*2)
	if err := repo.MarkFailed(ctx, job.ID, long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.ErrorMessage) != maxErrorLen {
		t.Errorf("expected error truncated to %d, got %d", maxErrorLen, len(got.ErrorMessage))
	}
}

func TestFailStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	stale := makeJob("shop-a", domain.ObjectTypeOrders, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	fresh := makeJob("shop-b", domain.ObjectTypeOrders, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	for _, job := range []*domain.SyncJob{stale, fresh} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.Claim(ctx, job.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Age the stale job's claim.
	old := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&domain.SyncJob{}).Where("id = ?", stale.ID).
		Update("started_at", old).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reclaimed, err := repo.FailStale(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", reclaimed)
	}

	got, err := repo.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected stale job failed, got %s", got.Status)
	}

	got, err = repo.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobStatusRunning {
		t.Errorf("expected fresh job untouched, got %s", got.Status)
	}
}

func TestStats(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	pending := makeJob("shop-a", domain.ObjectTypeOrders, day)
	completed := makeJob("shop-a", domain.ObjectTypeSKUs, day)
	failed := makeJob("shop-b", domain.ObjectTypeOrders, day)
	for _, job := range []*domain.SyncJob{pending, completed, failed} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := repo.Claim(ctx, completed.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkCompleted(ctx, completed.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Claim(ctx, failed.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := repo.Stats(ctx, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Pending != 1 || stats.Completed != 1 || stats.Failed != 1 || stats.Running != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !stats.Remaining() {
		t.Error("expected work remaining")
	}

	// Shop filter.
	stats, err = repo.Stats(ctx, "", "shop-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Failed != 1 || stats.Pending != 0 {
		t.Errorf("unexpected filtered stats: %+v", stats)
	}
	if stats.Remaining() {
		t.Error("expected no work remaining for shop-b")
	}
}

func TestExists(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := day.AddDate(0, 0, 1)

	exists, err := repo.Exists(ctx, "shop-a", domain.ObjectTypeOrders, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected no job yet")
	}

	if err := repo.Create(ctx, makeJob("shop-a", domain.ObjectTypeOrders, day)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exists, err = repo.Exists(ctx, "shop-a", domain.ObjectTypeOrders, day, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected job to exist")
	}
}

func TestRankCaseCoversAllTypes(t *testing.T) {
	expr := rankCase()
	for _, objectType := range domain.AllObjectTypes() {
		want := fmt.Sprintf("WHEN '%s' THEN %d", objectType, objectType.Rank())
		if !strings.Contains(expr, want) {
			t.Errorf("rank expression missing %q: %s", want, expr)
		}
	}
}
