// Package migration moves an owner's legacy transactions into the current
// location, asking for consent first and never copying a record twice.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// DefaultWriteTimeout bounds each individual write during a migration.
const DefaultWriteTimeout = 10 * time.Second

// ErrNoConsent is returned by Run when no consent callback was supplied.
var ErrNoConsent = errors.New("no consent callback supplied")

// ConsentFunc asks whoever owns the data whether to go ahead with plan. It
// should return promptly once ctx is done.
type ConsentFunc func(ctx context.Context, plan *model.MigrationPlan) (Decision, error)

// ProgressFunc is told how many of a run's candidates have been handled.
type ProgressFunc func(done, total int)

// Outcome is what Run reports back.
type Outcome struct {
	Plan   *model.MigrationPlan
	Status Status
	Result model.MigrationResult
}

type session struct {
	plan   *model.MigrationPlan
	status Status
}

// Orchestrator drives each owner through CHECKING, consent and MIGRATING.
// All state is per owner; one owner's check or migration never blocks another's.
type Orchestrator struct {
	store            service.RecordStore
	flags            service.FlagStore
	groups           service.GroupStore
	locator          *locator.Locator
	limiter          *rate.Limiter
	progress         ProgressFunc
	now              func() time.Time
	sessions         map[string]*session
	defaultGroupName string
	retry            service.RetryOptions
	writeTimeout     time.Duration
	mu               sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGroups lets the orchestrator look up and create the owner's default group.
func WithGroups(groups service.GroupStore) Option {
	return func(o *Orchestrator) { o.groups = groups }
}

// WithDefaultGroupName names the group created for owners who have none.
func WithDefaultGroupName(name string) Option {
	return func(o *Orchestrator) { o.defaultGroupName = name }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithWriteTimeout sets the per-write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithWriteLimiter paces migration writes.
func WithWriteLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithRetry configures retries for location reads.
func WithRetry(opts service.RetryOptions) Option {
	return func(o *Orchestrator) { o.retry = opts }
}

// New creates an orchestrator reading and writing through store and keeping
// each owner's settled status in flags.
func New(store service.RecordStore, flags service.FlagStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		flags:            flags,
		now:              time.Now,
		sessions:         make(map[string]*session),
		defaultGroupName: model.DefaultGroupName,
		retry:            locator.DefaultConfig().Retry,
		writeTimeout:     DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.locator = locator.NewWithConfig(store, locator.Config{Retry: o.retry})
	return o
}

// Status returns the owner's in-memory status.
func (o *Orchestrator) Status(ownerID string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[ownerID]; ok {
		return s.status
	}
	return StatusUnknown
}

// CheckForLegacyData looks for legacy records the owner has not migrated yet.
// It returns nil when there is nothing to ask about: the owner already
// completed or declined, or has no legacy data. Otherwise the owner is left
// AWAITING_CONSENT on the returned plan.
func (o *Orchestrator) CheckForLegacyData(ctx context.Context, ownerID string) (*model.MigrationPlan, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id cannot be empty", common.ErrInvalidState)
	}
	idle := func(s *session) bool { return !s.status.IsBusy() }
	logger := common.OwnerLogger(ownerID)

	// A persisted answer settles the owner without ever entering CHECKING.
	if settled := o.persistedStatus(ctx, ownerID); settled.IsSettled() {
		if err := o.transition(ownerID, settled, idle); err != nil {
			return nil, err
		}
		logger.Debug("Migration already settled", "status", settled)
		o.settle(ownerID, settled, nil)
		return nil, nil
	}

	if err := o.transition(ownerID, StatusChecking, idle); err != nil {
		return nil, err
	}

	plan, err := o.buildPlan(ctx, ownerID)
	if err != nil {
		logger.Error("Legacy check could not run", "error", err)
		o.settle(ownerID, StatusFailed, nil)
		return nil, err
	}

	if plan.AfterDedup() == 0 {
		logger.Info("No legacy data to migrate",
			"found", plan.Found,
			"already_migrated", plan.AlreadyMigrated)
		o.settle(ownerID, StatusNoLegacyData, nil)
		return nil, nil
	}

	logger.Info("Legacy data awaiting consent",
		"plan_id", plan.ID,
		"candidates", plan.CandidateCount(),
		"after_dedup", plan.AfterDedup(),
		"invalid", plan.Invalid)
	o.settle(ownerID, StatusAwaitingConsent, plan)
	return plan, nil
}

// DeclineMigration records that the owner refused the pending plan, so they
// are not asked again.
func (o *Orchestrator) DeclineMigration(ctx context.Context, ownerID string) error {
	var pending *model.MigrationPlan
	err := o.transition(ownerID, StatusDeclined, func(s *session) bool {
		pending = s.plan
		return s.status == StatusAwaitingConsent
	})
	if err != nil {
		return err
	}

	if err := o.flags.WriteFlag(ctx, model.FlagKey(ownerID), model.FlagSkipped); err != nil {
		o.settle(ownerID, StatusAwaitingConsent, pending)
		return fmt.Errorf("failed to persist decline: %w", err)
	}

	common.OwnerLogger(ownerID).Info("Legacy migration declined")
	o.settle(ownerID, StatusDeclined, nil)
	return nil
}

// Abandon drops a pending plan without deciding, as when the consent prompt
// is dismissed. Nothing is persisted; the next check asks again.
func (o *Orchestrator) Abandon(ownerID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[ownerID]
	if !ok || s.status != StatusAwaitingConsent {
		return false
	}
	s.status = StatusUnknown
	s.plan = nil
	return true
}

// Run performs a full check, consent and migration cycle. Cancelling ctx
// while consent is pending abandons the plan with nothing written.
func (o *Orchestrator) Run(ctx context.Context, ownerID, targetGroupID string, consent ConsentFunc) (Outcome, error) {
	if consent == nil {
		return Outcome{Status: o.Status(ownerID)}, ErrNoConsent
	}

	plan, err := o.CheckForLegacyData(ctx, ownerID)
	if err != nil || plan == nil {
		return Outcome{Status: o.Status(ownerID)}, err
	}

	decision, err := awaitConsent(ctx, plan, consent)
	if err != nil {
		o.Abandon(ownerID)
		common.OwnerLogger(ownerID).Info("Consent not given, nothing migrated", "reason", err)
		return Outcome{Status: o.Status(ownerID), Plan: plan}, err
	}

	if decision == DecisionDecline {
		if err := o.DeclineMigration(ctx, ownerID); err != nil {
			return Outcome{Status: o.Status(ownerID), Plan: plan}, err
		}
		return Outcome{Status: StatusDeclined, Plan: plan}, nil
	}

	result, err := o.RequestMigration(ctx, ownerID, plan, targetGroupID)
	return Outcome{Status: o.Status(ownerID), Plan: plan, Result: result}, err
}

func awaitConsent(ctx context.Context, plan *model.MigrationPlan, consent ConsentFunc) (Decision, error) {
	type answer struct {
		err      error
		decision Decision
	}

	answers := make(chan answer, 1)
	go func() {
		d, err := consent(ctx, plan)
		answers <- answer{decision: d, err: err}
	}()

	select {
	case <-ctx.Done():
		return DecisionDecline, ctx.Err()
	case a := <-answers:
		return a.decision, a.err
	}
}

// DryRun computes a fresh plan without writing anything, reading or
// persisting flags, or touching the owner's status.
func (o *Orchestrator) DryRun(ctx context.Context, ownerID string) (*model.MigrationPlan, error) {
	plan, err := o.buildPlan(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	plan.DryRun = true
	return plan, nil
}

// ResetStatus forgets the owner's persisted decision so the next session
// checks for legacy data again.
func (o *Orchestrator) ResetStatus(ctx context.Context, ownerID string) error {
	o.mu.Lock()
	if s, ok := o.sessions[ownerID]; ok && s.status.IsBusy() {
		o.mu.Unlock()
		return fmt.Errorf("%w: owner %s is %s", common.ErrInvalidState, ownerID, s.status)
	}
	o.mu.Unlock()

	if err := o.flags.DeleteFlag(ctx, model.FlagKey(ownerID)); err != nil {
		return fmt.Errorf("failed to clear migration flag: %w", err)
	}

	o.mu.Lock()
	delete(o.sessions, ownerID)
	o.mu.Unlock()

	common.OwnerLogger(ownerID).Info("Migration status reset")
	return nil
}

// transition moves the owner to next if allowed approves the current session.
func (o *Orchestrator) transition(ownerID string, next Status, allowed func(*session) bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[ownerID]
	if !ok {
		s = &session{status: StatusUnknown}
		o.sessions[ownerID] = s
	}
	if !allowed(s) {
		return fmt.Errorf("%w: cannot move owner %s from %s to %s", common.ErrInvalidState, ownerID, s.status, next)
	}
	s.status = next
	return nil
}

func (o *Orchestrator) settle(ownerID string, status Status, plan *model.MigrationPlan) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[ownerID] = &session{status: status, plan: plan}
}

func (o *Orchestrator) persistedStatus(ctx context.Context, ownerID string) Status {
	value, found, err := o.flags.ReadFlag(ctx, model.FlagKey(ownerID))
	if err != nil {
		common.OwnerLogger(ownerID).Warn("Could not read migration flag, checking anyway", "error", err)
		return StatusUnknown
	}
	if !found {
		return StatusUnknown
	}

	switch value {
	case model.FlagMigrated:
		return StatusCompleted
	case model.FlagSkipped:
		return StatusDeclined
	default:
		common.OwnerLogger(ownerID).Warn("Ignoring unrecognized migration flag", "value", value)
		return StatusUnknown
	}
}
