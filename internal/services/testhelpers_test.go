package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/dispatch"
	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func testFanout(t *testing.T) *dispatch.Fanout {
	t.Helper()
	log := testLogger(t)
	return dispatch.NewFanout(log, dispatch.NewRegistry(log))
}

// fakeClock is a manually advanced clock. After-channels fire when Advance
// moves the clock past their deadline.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	var rest []*clockWaiter
	for _, w := range c.waiters {
		if w.at.After(c.now) {
			rest = append(rest, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = rest
}

// ---- fake repos ----

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*types.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[uuid.UUID]*types.Alert)}
}

func (r *fakeAlertRepo) Create(_ context.Context, _ *gorm.DB, alert *types.Alert) (*types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *alert
	r.alerts[alert.ID] = &cp
	return alert, nil
}

func (r *fakeAlertRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlertRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			a.Status = v.(types.AlertStatus)
		case "escalation_step":
			a.EscalationStep = v.(int)
		case "acknowledged_at":
			ts := v.(time.Time)
			a.AcknowledgedAt = &ts
		case "acknowledged_by":
			id := v.(uuid.UUID)
			a.AcknowledgedBy = &id
		case "resolved_at":
			ts := v.(time.Time)
			a.ResolvedAt = &ts
		case "updated_at":
			a.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeAlertRepo) List(_ context.Context, _ *gorm.DB, filter repos.AlertFilter) ([]*types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Alert
	for _, a := range r.alerts {
		if filter.FarmID != nil && a.FarmID != *filter.FarmID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeAlertRepo) ListByStatuses(_ context.Context, _ *gorm.DB, statuses []types.AlertStatus) ([]*types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[types.AlertStatus]bool)
	for _, s := range statuses {
		want[s] = true
	}
	var out []*types.Alert
	for _, a := range r.alerts {
		if want[a.Status] {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]*types.EscalationTicket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[uuid.UUID]*types.EscalationTicket)}
}

func (r *fakeTicketRepo) Upsert(_ context.Context, _ *gorm.DB, alertID uuid.UUID, nextStep int, deadlineAt time.Time) (*types.EscalationTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.tickets[alertID]
	if !ok {
		row = &types.EscalationTicket{ID: uuid.New(), AlertID: alertID, Generation: 0}
		r.tickets[alertID] = row
	}
	row.NextStep = nextStep
	row.DeadlineAt = deadlineAt
	row.Generation++
	cp := *row
	return &cp, nil
}

func (r *fakeTicketRepo) Get(_ context.Context, _ *gorm.DB, alertID uuid.UUID) (*types.EscalationTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.tickets[alertID]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, _ *gorm.DB, alertID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, alertID)
	return nil
}

func (r *fakeTicketRepo) ListActive(_ context.Context, _ *gorm.DB) ([]*types.EscalationTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.EscalationTicket
	for _, row := range r.tickets {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	return out, nil
}

type fakeECallRepo struct {
	mu     sync.Mutex
	ecalls map[uuid.UUID]*types.ECall
}

func newFakeECallRepo() *fakeECallRepo {
	return &fakeECallRepo{ecalls: make(map[uuid.UUID]*types.ECall)}
}

func (r *fakeECallRepo) Create(_ context.Context, _ *gorm.DB, ecall *types.ECall) (*types.ECall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ecall
	r.ecalls[ecall.ID] = &cp
	return ecall, nil
}

func (r *fakeECallRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ECall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ecalls[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeECallRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ecalls[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			e.Status = v.(types.ECallStatus)
		case "resolved_at":
			ts := v.(time.Time)
			e.ResolvedAt = &ts
		case "updated_at":
			e.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeECallRepo) ListByFarm(_ context.Context, _ *gorm.DB, farmID uuid.UUID, limit, offset int) ([]*types.ECall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ECall
	for _, e := range r.ecalls {
		if e.FarmID == farmID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- fake collaborators ----

// stubRules returns canned rule resolutions.
type stubRules struct {
	channels        []types.ChannelKind
	recipients      []uuid.UUID
	includeExternal bool
	steps           []types.EscalationStep
}

func (s *stubRules) ResolveChannels(context.Context, uuid.UUID, types.Severity) []types.ChannelKind {
	if len(s.channels) == 0 {
		return []types.ChannelKind{types.ChannelDashboard}
	}
	return s.channels
}

func (s *stubRules) ResolveRecipients(context.Context, uuid.UUID, types.Severity, types.AlertType) ([]uuid.UUID, bool, error) {
	return s.recipients, s.includeExternal, nil
}

func (s *stubRules) ResolveMessage(_ context.Context, alertType types.AlertType, severity types.Severity, explicit, explicitTts string, _ map[string]string) (string, string) {
	if explicit != "" {
		return explicit, explicitTts
	}
	return string(alertType) + " " + string(severity) + " alert", ""
}

func (s *stubRules) EscalationSteps(context.Context, uuid.UUID, types.Severity) ([]types.EscalationStep, error) {
	return s.steps, nil
}

type escalatedEvent struct {
	alertID    uuid.UUID
	step       int
	targetType types.EscalationTargetType
}

// recordingNotifier captures lifecycle events. Channel-backed fields let
// tests wait on async transitions without sleeping.
type recordingNotifier struct {
	mu        sync.Mutex
	created   []uuid.UUID
	acked     []uuid.UUID
	resolved  []uuid.UUID
	escalated chan escalatedEvent
	ecalls    chan uuid.UUID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		escalated: make(chan escalatedEvent, 8),
		ecalls:    make(chan uuid.UUID, 8),
	}
}

func (n *recordingNotifier) AlertCreated(alert *types.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, alert.ID)
}

func (n *recordingNotifier) AlertAcknowledged(alert *types.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acked = append(n.acked, alert.ID)
}

func (n *recordingNotifier) AlertEscalated(alert *types.Alert, step int, targetType types.EscalationTargetType) {
	n.escalated <- escalatedEvent{alertID: alert.ID, step: step, targetType: targetType}
}

func (n *recordingNotifier) AlertResolved(alert *types.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, alert.ID)
}

func (n *recordingNotifier) ECallOpened(ecall *types.ECall) {
	n.ecalls <- ecall.ID
}

func (n *recordingNotifier) ECallResolved(*types.ECall) {}

func (n *recordingNotifier) ackedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.acked)
}

// recordingScheduler stands in for the real scheduler in lifecycle-only tests.
type recordingScheduler struct {
	mu        sync.Mutex
	registers []uuid.UUID
	cancels   []uuid.UUID
}

func (s *recordingScheduler) Register(_ context.Context, alertID uuid.UUID, _ int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers = append(s.registers, alertID)
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, alertID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, alertID)
	return nil
}

func (s *recordingScheduler) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// recordingEscalator feeds scheduler firings to the test instead of the real
// lifecycle manager.
type recordingEscalator struct {
	fired chan escalatedEvent
}

func newRecordingEscalator() *recordingEscalator {
	return &recordingEscalator{fired: make(chan escalatedEvent, 8)}
}

func (e *recordingEscalator) Escalate(_ context.Context, alertID uuid.UUID, step int) {
	e.fired <- escalatedEvent{alertID: alertID, step: step}
}
