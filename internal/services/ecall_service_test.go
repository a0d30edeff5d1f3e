package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/types"
)

func newECallFixture(t *testing.T) (ECallService, *fakeECallRepo, *recordingNotifier, *fakeClock) {
	t.Helper()
	repo := newFakeECallRepo()
	notifier := newRecordingNotifier()
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewECallService(nil, testLogger(t), clock, repo, testFanout(t), notifier)
	return svc, repo, notifier, clock
}

func TestOpenECallSnapshotsWorkerInfo(t *testing.T) {
	svc, repo, notifier, _ := newECallFixture(t)

	info := map[string]any{"name": "Kim", "blood_type": "A+"}
	ecall, err := svc.Open(context.Background(), OpenECallCommand{
		TriggerType: types.ECallTriggerManual,
		FarmID:      uuid.New(),
		WorkerInfo:  info,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ecall.Status != types.ECallStatusTriggered {
		t.Fatalf("status: want=%v got=%v", types.ECallStatusTriggered, ecall.Status)
	}

	stored, _ := repo.GetByID(context.Background(), nil, ecall.ID)
	var snapshot map[string]any
	if err := json.Unmarshal(stored.WorkerInfo, &snapshot); err != nil {
		t.Fatalf("decode worker info: %v", err)
	}
	if snapshot["blood_type"] != "A+" {
		t.Fatalf("worker info snapshot: got %v", snapshot)
	}

	select {
	case <-notifier.ecalls:
	default:
		t.Fatalf("open must publish an e-call event")
	}
}

func TestOpenECallValidation(t *testing.T) {
	svc, _, _, _ := newECallFixture(t)

	if _, err := svc.Open(context.Background(), OpenECallCommand{TriggerType: types.ECallTriggerManual}); err == nil {
		t.Fatalf("missing farm_id must fail")
	}
	if _, err := svc.Open(context.Background(), OpenECallCommand{TriggerType: "psychic", FarmID: uuid.New()}); err == nil {
		t.Fatalf("invalid trigger_type must fail")
	}
}

func TestECallStatusFlow(t *testing.T) {
	svc, _, _, clock := newECallFixture(t)

	ecall, err := svc.Open(context.Background(), OpenECallCommand{
		TriggerType: types.ECallTriggerDevice,
		FarmID:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	dispatched, err := svc.MarkDispatched(context.Background(), ecall.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dispatched.Status != types.ECallStatusDispatched {
		t.Fatalf("status: want=%v got=%v", types.ECallStatusDispatched, dispatched.Status)
	}

	resolved, err := svc.Resolve(context.Background(), ecall.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != types.ECallStatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("resolve: status=%v resolvedAt=%v", resolved.Status, resolved.ResolvedAt)
	}

	// second resolve is a no-op
	clock.Advance(time.Minute)
	again, err := svc.Resolve(context.Background(), ecall.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !again.ResolvedAt.Equal(*resolved.ResolvedAt) {
		t.Fatalf("second resolve rewrote resolved_at")
	}

	// cancelling a resolved e-call conflicts
	if _, err := svc.Cancel(context.Background(), ecall.ID); !errors.Is(err, ErrECallResolved) {
		t.Fatalf("cancel after resolve: want ErrECallResolved, got %v", err)
	}
}

func TestECallCancelIsIdempotent(t *testing.T) {
	svc, _, _, _ := newECallFixture(t)

	ecall, err := svc.Open(context.Background(), OpenECallCommand{
		TriggerType: types.ECallTriggerManual,
		FarmID:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), ecall.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, err := svc.Cancel(context.Background(), ecall.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Status != types.ECallStatusCancelled {
		t.Fatalf("status: want=%v got=%v", types.ECallStatusCancelled, again.Status)
	}
}

func TestOpenAutoLinksAlert(t *testing.T) {
	svc, repo, _, _ := newECallFixture(t)

	workerID := uuid.New()
	alert := &types.Alert{
		ID:       uuid.New(),
		Type:     types.AlertTypeFall,
		Severity: types.SeverityDanger,
		FarmID:   uuid.New(),
		WorkerID: &workerID,
	}
	ecall, err := svc.OpenAuto(context.Background(), alert, "119")
	if err != nil {
		t.Fatalf("open auto: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), nil, ecall.ID)
	if stored.AlertID == nil || *stored.AlertID != alert.ID {
		t.Fatalf("e-call must link its alert: got %v", stored.AlertID)
	}
	if stored.TriggerType != types.ECallTriggerAuto {
		t.Fatalf("trigger type: want=%v got=%v", types.ECallTriggerAuto, stored.TriggerType)
	}
	if stored.AccidentType != string(types.AlertTypeFall) {
		t.Fatalf("accident type: got %q", stored.AccidentType)
	}

	if _, err := svc.OpenAuto(context.Background(), nil, "119"); err == nil {
		t.Fatalf("nil alert must fail")
	}
}

func TestECallUnknownIDReturnsNotFound(t *testing.T) {
	svc, _, _, _ := newECallFixture(t)
	if _, err := svc.Resolve(context.Background(), uuid.New()); !errors.Is(err, ErrECallNotFound) {
		t.Fatalf("want ErrECallNotFound, got %v", err)
	}
}
