// Package approval implements the Approval Manager component: a suspension
// rendezvous between the Reasoning Loop and an out-of-band decision source.
//
// The teacher repository's own approval checker (internal/agent/approval.go)
// is a synchronous poll/decide model — Check() returns an immediate verdict,
// never blocking. That shape has no suspension to ground a rendezvous on, so
// Manager's wait/timeout/cancel race is instead adapted from the session
// lock manager's acquire-with-deadline pattern (internal/sessions/write_lock.go):
// a goroutine that can be signaled, raced against a timer and a
// context.Done() channel. Record bookkeeping (fields, create/get/list-shaped
// store) follows internal/agent/approval.go's MemoryApprovalStore.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultTimeout is the approval wait deadline used when a caller does not
// specify one: five minutes, per the spec's default.
const DefaultTimeout = 300_000 * time.Millisecond

// pending is the live bookkeeping for one unresolved-or-just-resolved
// ApprovalRecord. transition closes done at the same instant it sets the
// record's Decision, under mu. CancelSession may instead close done without
// setting a Decision (and install a fresh channel), so a goroutine unblocked
// by done closing checks IsResolved to tell a decision from a cancellation.
type pending struct {
	mu     sync.Mutex
	record *models.ApprovalRecord
	done   chan struct{}
	timer  *time.Timer
}

// transition sets the record's decision if it is currently unresolved and
// signals done. Returns true iff this call caused the transition — the
// "first transition wins" rule that makes a concurrent resolve() and
// timeout race linearizable.
func (p *pending) transition(decision models.Decision, resolvedBy string, nowMs int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.record.IsResolved() {
		return false
	}
	p.record.Decision = &decision
	p.record.ResolvedAtMs = &nowMs
	p.record.ResolvedBy = resolvedBy
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.done)
	return true
}

// Manager implements create / wait_for_decision / resolve.
type Manager struct {
	mu      sync.Mutex
	records map[string]*pending

	// nowFunc and newID are overridable for deterministic tests.
	nowFunc func() time.Time
	newID   func() string
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{
		records: make(map[string]*pending),
		nowFunc: time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Create allocates a new ApprovalRecord with the given timeout (0 means
// DefaultTimeout) and starts its deadline timer.
func (m *Manager) Create(req models.ApprovalRequest, timeout time.Duration) *models.ApprovalRecord {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := m.nowFunc()
	record := &models.ApprovalRecord{
		ID:          m.newID(),
		Request:     req,
		CreatedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(timeout).UnixMilli(),
	}
	p := &pending{record: record, done: make(chan struct{})}
	p.timer = time.AfterFunc(timeout, func() {
		p.transition(models.DecisionTimeout, "", m.nowFunc().UnixMilli())
	})

	m.mu.Lock()
	m.records[record.ID] = p
	m.mu.Unlock()

	return record
}

// WaitForDecision blocks until record's decision is set (by Resolve, by its
// timeout firing, or immediately if it was already resolved when this is
// called), or until ctx is cancelled. Cancellation leaves the record
// allocated and unresolved — a later Resolve still applies.
func (m *Manager) WaitForDecision(ctx context.Context, record *models.ApprovalRecord) (models.Decision, error) {
	m.mu.Lock()
	p, ok := m.records[record.ID]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("approval: unknown record %s", record.ID)
	}

	p.mu.Lock()
	if p.record.IsResolved() {
		decision := *p.record.Decision
		p.mu.Unlock()
		return decision, nil
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.record.IsResolved() {
			// done was closed by CancelSession, not by a real decision: the
			// record stays allocated and unresolved, and this waiter is
			// unblocked with an error rather than a fabricated decision.
			return "", fmt.Errorf("approval: record %s cancelled", record.ID)
		}
		return *p.record.Decision, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve sets record_id's decision if currently unresolved. Returns true if
// this call caused the transition, false if the record is unknown or
// already resolved.
func (m *Manager) Resolve(recordID string, decision models.Decision, resolvedBy string) bool {
	m.mu.Lock()
	p, ok := m.records[recordID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return p.transition(decision, resolvedBy, m.nowFunc().UnixMilli())
}

// Get returns the current state of a record by id.
func (m *Manager) Get(recordID string) (models.ApprovalRecord, bool) {
	m.mu.Lock()
	p, ok := m.records[recordID]
	m.mu.Unlock()
	if !ok {
		return models.ApprovalRecord{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.record, true
}

// CancelSession unblocks any pending waiter for records whose
// Request.SessionKey matches sessionKey, without resolving them: the decoded
// decision remains unset so a later Resolve still applies (matching the
// "in-flight approval whose session is deleted" open question decision
// recorded in DESIGN.md — the waiter is unblocked with an error, the record
// is kept).
func (m *Manager) CancelSession(sessionKey string) {
	m.mu.Lock()
	var affected []*pending
	for _, p := range m.records {
		p.mu.Lock()
		if p.record.Request.SessionKey == sessionKey && !p.record.IsResolved() {
			affected = append(affected, p)
		}
		p.mu.Unlock()
	}
	m.mu.Unlock()

	for _, p := range affected {
		p.mu.Lock()
		select {
		case <-p.done:
			// Resolved concurrently; nothing to cancel.
		default:
			close(p.done)
			p.done = make(chan struct{})
			// Intentionally leave p.record.Decision nil: callers blocked on
			// the now-closed channel observe an unresolved record and must
			// treat it as a cancellation, not a decision.
		}
		p.mu.Unlock()
	}
}

// Prune removes resolved records older than olderThan from the live set.
// Not scheduled by anything in this core (heartbeats/cron are out of
// scope); a caller that wants bounded memory growth invokes this
// periodically from its own process supervisor.
func (m *Manager) Prune(olderThan time.Duration) {
	cutoff := m.nowFunc().Add(-olderThan).UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.records {
		p.mu.Lock()
		resolved := p.record.IsResolved() && p.record.ResolvedAtMs != nil && *p.record.ResolvedAtMs < cutoff
		p.mu.Unlock()
		if resolved {
			delete(m.records, id)
		}
	}
}
