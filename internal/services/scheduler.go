package services

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/types"
)

// Escalator is what the scheduler calls when a ticket comes due. Implemented
// by AlertService; an interface here breaks the construction cycle between
// the two.
type Escalator interface {
	Escalate(ctx context.Context, alertID uuid.UUID, step int)
}

// TicketScheduler is the lifecycle manager's view of the scheduler.
type TicketScheduler interface {
	Register(ctx context.Context, alertID uuid.UUID, step int, deadline time.Time) error
	Cancel(ctx context.Context, alertID uuid.UUID) error
}

type ticketItem struct {
	alertID    uuid.UUID
	step       int
	deadline   time.Time
	generation int64
	index      int
}

type ticketHeap []*ticketItem

func (h ticketHeap) Len() int            { return len(h) }
func (h ticketHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h ticketHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *ticketHeap) Push(x any)         { item := x.(*ticketItem); item.index = len(*h); *h = append(*h, item) }
func (h *ticketHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// EscalationScheduler holds one active deadline per pending alert. Cancel is
// lazy: it invalidates the alert's generation and lets the stale heap entry
// fall out when it surfaces. The timer loop is the single decision-maker for
// what is due; the resulting escalate calls run in their own goroutines so a
// slow SMS gateway never stalls the clock.
type EscalationScheduler struct {
	log     *logger.Logger
	db      *gorm.DB
	clock   Clock
	tickets repos.EscalationTicketRepo
	alerts  repos.AlertRepo
	rules   RuleService

	mu          sync.Mutex
	heap        ticketHeap
	generations map[uuid.UUID]int64

	wake      chan struct{}
	escalator Escalator
}

func NewEscalationScheduler(db *gorm.DB, baseLog *logger.Logger, clock Clock, tickets repos.EscalationTicketRepo, alerts repos.AlertRepo, rules RuleService) *EscalationScheduler {
	return &EscalationScheduler{
		log:         baseLog.With("service", "EscalationScheduler"),
		db:          db,
		clock:       clock,
		tickets:     tickets,
		alerts:      alerts,
		rules:       rules,
		generations: make(map[uuid.UUID]int64),
		wake:        make(chan struct{}, 1),
	}
}

func (s *EscalationScheduler) SetEscalator(e Escalator) {
	s.escalator = e
}

// Register inserts or replaces the alert's ticket. The persisted row carries
// the generation so restarts keep cancellation semantics.
func (s *EscalationScheduler) Register(ctx context.Context, alertID uuid.UUID, step int, deadline time.Time) error {
	row, err := s.tickets.Upsert(ctx, nil, alertID, step, deadline)
	if err != nil {
		return err
	}
	generation := int64(1)
	if row != nil {
		generation = row.Generation
	}

	s.mu.Lock()
	s.generations[alertID] = generation
	heap.Push(&s.heap, &ticketItem{
		alertID:    alertID,
		step:       step,
		deadline:   deadline,
		generation: generation,
	})
	s.mu.Unlock()

	s.log.Debug("escalation ticket registered", "alert_id", alertID, "step", step, "deadline", deadline, "generation", generation)
	s.kick()
	return nil
}

// Cancel invalidates the alert's pending ticket. A timer that already popped
// the entry sees a generation mismatch and discards it.
func (s *EscalationScheduler) Cancel(ctx context.Context, alertID uuid.UUID) error {
	s.mu.Lock()
	delete(s.generations, alertID)
	s.mu.Unlock()

	if err := s.tickets.Delete(ctx, nil, alertID); err != nil {
		return err
	}
	s.log.Debug("escalation ticket cancelled", "alert_id", alertID)
	return nil
}

func (s *EscalationScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Rehydrate rebuilds the in-memory queue after a restart. Tickets keep their
// stored deadlines, so nothing fires early and nothing fires twice; a ticket
// whose deadline passed while the process was down fires once immediately.
// Alerts left pending without a ticket row get one recomputed from their
// timestamps. A single bad row skips that row only.
func (s *EscalationScheduler) Rehydrate(ctx context.Context) error {
	rows, err := s.tickets.ListActive(ctx, nil)
	if err != nil {
		return err
	}

	covered := make(map[uuid.UUID]bool)
	s.mu.Lock()
	for _, row := range rows {
		if row == nil || row.AlertID == uuid.Nil || row.NextStep < 1 {
			s.log.Warn("skipping corrupt escalation ticket during rehydration", "row", row)
			continue
		}
		covered[row.AlertID] = true
		s.generations[row.AlertID] = row.Generation
		heap.Push(&s.heap, &ticketItem{
			alertID:    row.AlertID,
			step:       row.NextStep,
			deadline:   row.DeadlineAt,
			generation: row.Generation,
		})
	}
	s.mu.Unlock()

	// Pending alerts whose ticket insert was lost (crash between alert and
	// ticket writes) are re-registered from their own timestamps.
	pending, err := s.alerts.ListByStatuses(ctx, nil, []types.AlertStatus{types.AlertStatusSent, types.AlertStatusEscalated})
	if err != nil {
		s.log.Warn("pending alert scan failed during rehydration", "error", err)
		return nil
	}
	for _, alert := range pending {
		if covered[alert.ID] {
			continue
		}
		steps, err := s.rules.EscalationSteps(ctx, alert.FarmID, alert.Severity)
		if err != nil {
			s.log.Warn("escalation rule lookup failed during rehydration", "alert_id", alert.ID, "error", err)
			continue
		}
		nextStep := alert.EscalationStep + 1
		var deadline time.Time
		found := false
		for _, st := range steps {
			if st.Step == nextStep {
				base := alert.CreatedAt
				if alert.EscalationStep > 0 {
					// step n counts from the moment step n-1 fired
					base = alert.UpdatedAt
				}
				deadline = base.Add(time.Duration(st.WaitMinutes) * time.Minute)
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if err := s.Register(ctx, alert.ID, nextStep, deadline); err != nil {
			s.log.Warn("ticket re-registration failed during rehydration", "alert_id", alert.ID, "error", err)
		}
	}

	s.kick()
	s.log.Info("escalation scheduler rehydrated", "tickets", len(rows), "pending_alerts", len(pending))
	return nil
}

func (s *EscalationScheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *EscalationScheduler) run(ctx context.Context) {
	s.log.Info("escalation scheduler loop started")
	for {
		due, waitCh := s.collectDue()

		for _, item := range due {
			s.fire(ctx, item)
		}

		select {
		case <-ctx.Done():
			s.log.Info("escalation scheduler loop stopped")
			return
		case <-s.wake:
		case <-waitCh:
		}
	}
}

// collectDue pops every valid ticket whose deadline has passed and returns a
// wait channel for the next future deadline (nil when the queue is empty,
// which blocks until a wake).
func (s *EscalationScheduler) collectDue() ([]*ticketItem, <-chan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []*ticketItem
	for s.heap.Len() > 0 {
		top := s.heap[0]
		current, ok := s.generations[top.alertID]
		if !ok || current != top.generation {
			heap.Pop(&s.heap)
			continue
		}
		if top.deadline.After(now) {
			return due, s.clock.After(top.deadline.Sub(now))
		}
		heap.Pop(&s.heap)
		delete(s.generations, top.alertID)
		due = append(due, top)
	}
	return due, nil
}

func (s *EscalationScheduler) fire(ctx context.Context, item *ticketItem) {
	if err := s.tickets.Delete(ctx, nil, item.alertID); err != nil {
		s.log.Warn("fired ticket cleanup failed", "alert_id", item.alertID, "error", err)
	}
	if s.escalator == nil {
		s.log.Error("no escalator configured, dropping due ticket", "alert_id", item.alertID, "step", item.step)
		return
	}
	s.log.Info("escalation deadline elapsed", "alert_id", item.alertID, "step", item.step)
	go s.escalator.Escalate(context.WithoutCancel(ctx), item.alertID, item.step)
}
