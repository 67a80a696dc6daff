// Package runtime implements the Runtime component: the external surface
// that owns the Session Context cache, Tool Registry, Approval Manager,
// Transcript Store, Notifier, and the Model Adapter factory, and wires them
// through one chat turn at a time.
//
// Grounded on the overall collaborator-ownership shape of
// internal/agent/tool_registry.go's Runtime type (session cache, registry,
// refcounted per-session lock) and internal/sessions/store.go's Store
// interface naming.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/haasonsaas/agentcore/internal/adapter"
	"github.com/haasonsaas/agentcore/internal/approval"
	"github.com/haasonsaas/agentcore/internal/loop"
	"github.com/haasonsaas/agentcore/internal/notifier"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/obslog"
	"github.com/haasonsaas/agentcore/internal/registry"
	"github.com/haasonsaas/agentcore/internal/session"
	"github.com/haasonsaas/agentcore/internal/transcript"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// MaxMessages bounds how many trailing messages are rehydrated from the
// Transcript Store into a freshly created session Context.
const MaxMessages = 200

// Runtime is the external entry point for the whole core.
type Runtime struct {
	sessions  *session.Cache
	locker    *session.Locker
	registry  *registry.Registry
	approvals *approval.Manager
	store     transcript.Store
	notifier  notifier.Notifier

	adapters     map[string]adapter.Adapter
	defaultModel string

	// ApprovalTimeout overrides approval.DefaultTimeout for every Loop this
	// Runtime constructs. Zero means use the Manager's own default.
	ApprovalTimeout time.Duration

	// Metrics and ObsLog are optional ambient-stack collaborators, forwarded
	// to every Loop this Runtime constructs. Both are nil-safe: an
	// unconfigured Runtime records and logs nothing beyond the
	// log/slog.Warn/Info calls in its own methods.
	Metrics *observability.Metrics
	ObsLog  *obslog.Logger
}

// New builds a Runtime. store may be nil, meaning persistence is disabled
// and only the in-memory Context is authoritative. notifier may be nil,
// meaning approval-gated tools always fail closed.
func New(reg *registry.Registry, approvals *approval.Manager, store transcript.Store, n notifier.Notifier, adapters map[string]adapter.Adapter, defaultModel string) *Runtime {
	return &Runtime{
		sessions:     session.NewCache(),
		locker:       session.NewLocker(),
		registry:     reg,
		approvals:    approvals,
		store:        store,
		notifier:     n,
		adapters:     adapters,
		defaultModel: defaultModel,
	}
}

// Chat runs one complete turn for a session, creating it if this is its
// first message.
func (r *Runtime) Chat(ctx context.Context, sessionID, channel, senderID, text string, model string) (string, error) {
	sessCtx, err := r.getOrCreate(sessionID, channel, senderID)
	if err != nil {
		return "", err
	}

	r.persistBestEffort(sessCtx.SessionID, models.Message{Role: models.RoleUser, Content: text})

	unlock := r.locker.Acquire(sessionID)
	defer unlock()

	a, err := r.adapterFor(model)
	if err != nil {
		return "", err
	}
	l := loop.New(a, r.registry, r.approvals, r.notifier)
	l.Metrics = r.Metrics
	l.ObsLog = r.ObsLog
	l.ModelName = modelKey(model, r.defaultModel)
	l.ApprovalTimeout = r.ApprovalTimeout

	reply, err := l.Chat(ctx, sessCtx, text)
	if err != nil {
		return "", err
	}

	r.persistBestEffort(sessCtx.SessionID, models.Message{Role: models.RoleAssistant, Content: reply})

	return reply, nil
}

// ResolveApproval forwards an out-of-band decision to the Approval Manager.
// Only APPROVE and DENY are valid external decisions; TIMEOUT is reserved
// for the Manager's own deadline handler.
func (r *Runtime) ResolveApproval(recordID string, decision models.Decision, resolvedBy string) bool {
	if decision != models.DecisionApprove && decision != models.DecisionDeny {
		return false
	}
	return r.approvals.Resolve(recordID, decision, resolvedBy)
}

// RegisterTool adds or replaces a tool in the registry.
func (r *Runtime) RegisterTool(tool models.Tool) error {
	return r.registry.Register(tool)
}

// GetSession returns the cached Context for sessionID, if any.
func (r *Runtime) GetSession(sessionID string) (*session.Context, bool) {
	return r.sessions.Get(sessionID)
}

// ClearSession evicts a session's in-memory Context and unblocks any
// in-flight approval waiter scoped to it, per the recorded decision that an
// in-flight approval whose session is deleted stays allocated but unblocks
// its waiter with an error rather than silently resolving it.
func (r *Runtime) ClearSession(sessionID string) {
	r.approvals.CancelSession(sessionID)
	r.sessions.Delete(sessionID)
	r.Metrics.SetActiveSessions(len(r.sessions.List()))
}

// ListSessions returns every cached session id, sorted.
func (r *Runtime) ListSessions() []string {
	ids := make([]string, 0)
	for _, ctx := range r.sessions.List() {
		ids = append(ids, ctx.SessionID)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runtime) getOrCreate(sessionID, channel, senderID string) (*session.Context, error) {
	ctx, created := r.sessions.GetOrCreate(sessionID, func() *session.Context {
		sessionType := session.DeriveSessionType(channel)
		c := session.NewContext(sessionID, channel, senderID, "", sessionType)
		if r.store != nil {
			if err := r.store.Create(sessionID, models.SessionMeta{
				Type:      string(sessionType),
				SessionID: sessionID,
				Channel:   channel,
				CreatedAt: transcript.NowISO8601(),
			}); err != nil {
				slog.Warn("runtime: failed to create transcript store entry", "session_id", sessionID, "error", err)
			}
			if tail, err := r.store.LoadTail(sessionID, MaxMessages); err != nil {
				slog.Warn("runtime: failed to rehydrate transcript tail", "session_id", sessionID, "error", err)
			} else if len(tail) > 0 {
				c.SeedMessages(tail)
			}
		}
		return c
	})
	if created {
		slog.Info("runtime: session created", "session_id", sessionID, "channel", channel)
		r.Metrics.SetActiveSessions(len(r.sessions.List()))
	}
	return ctx, nil
}

func (r *Runtime) persistBestEffort(sessionID string, msg models.Message) {
	if r.store == nil {
		return
	}
	if err := r.store.Append(sessionID, msg); err != nil {
		slog.Warn("runtime: failed to persist message", "session_id", sessionID, "role", msg.Role, "error", err)
	}
}

func (r *Runtime) adapterFor(model string) (adapter.Adapter, error) {
	key := modelKey(model, r.defaultModel)
	a, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("runtime: no adapter registered for model %q", key)
	}
	return a, nil
}

// modelKey resolves the requested model name against the Runtime's default,
// the same fallback adapterFor applies, kept separate so metrics labeling
// doesn't need to re-derive adapter-lookup logic.
func modelKey(model, defaultModel string) string {
	if model == "" {
		return defaultModel
	}
	return model
}
