package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTicketUpsertBumpsGeneration(t *testing.T) {
	repo := NewEscalationTicketRepo(testDB(t), repoLogger(t))
	alertID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := repo.Upsert(context.Background(), nil, alertID, 1, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Generation != 1 || first.NextStep != 1 {
		t.Fatalf("first row: generation=%d step=%d", first.Generation, first.NextStep)
	}

	second, err := repo.Upsert(context.Background(), nil, alertID, 2, base.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Generation != 2 {
		t.Fatalf("reschedule must bump generation: want=2 got=%d", second.Generation)
	}
	if second.NextStep != 2 {
		t.Fatalf("next step: want=2 got=%d", second.NextStep)
	}
	if !second.DeadlineAt.Equal(base.Add(20 * time.Minute)) {
		t.Fatalf("deadline: want=%v got=%v", base.Add(20*time.Minute), second.DeadlineAt)
	}

	// one row per alert
	all, err := repo.ListActive(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("rows per alert: want=1 got=%d", len(all))
	}
}

func TestTicketDelete(t *testing.T) {
	repo := NewEscalationTicketRepo(testDB(t), repoLogger(t))
	alertID := uuid.New()

	if _, err := repo.Upsert(context.Background(), nil, alertID, 1, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Delete(context.Background(), nil, alertID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	row, err := repo.Get(context.Background(), nil, alertID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row != nil {
		t.Fatalf("deleted ticket still present: %+v", row)
	}

	// deleting a missing row is fine
	if err := repo.Delete(context.Background(), nil, uuid.New()); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestTicketListActiveOrdersByDeadline(t *testing.T) {
	repo := NewEscalationTicketRepo(testDB(t), repoLogger(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	late := uuid.New()
	early := uuid.New()
	if _, err := repo.Upsert(context.Background(), nil, late, 1, base.Add(time.Hour)); err != nil {
		t.Fatalf("upsert late: %v", err)
	}
	if _, err := repo.Upsert(context.Background(), nil, early, 1, base.Add(time.Minute)); err != nil {
		t.Fatalf("upsert early: %v", err)
	}

	rows, err := repo.ListActive(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(rows))
	}
	if rows[0].AlertID != early {
		t.Fatalf("ordering: earliest deadline first, got %v", rows[0].AlertID)
	}
}
