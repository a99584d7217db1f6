package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// CaseSource resolves current case state for membership checks.
type CaseSource interface {
	GetByID(ctx context.Context, id string) (*domain.Case, error)
}

// HistorySource resolves the ordered message history for snapshots.
type HistorySource interface {
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
}

// Router maps live connections to case channels and fans out messages to
// exactly the connections currently bound to a channel.
type Router struct {
	registry *Registry
	cases    CaseSource
	history  HistorySource
	logger   *zap.Logger

	mu       sync.Mutex
	bindings map[string]map[string]*binding
	joined   map[string]map[string]struct{}
}

// binding ties a connection to a channel. snapshotSeq is the highest
// sequence number delivered in the join snapshot; broadcasts at or below
// it are already on the wire and must not be re-sent.
type binding struct {
	conn        Connection
	snapshotSeq int64
}

// NewRouter creates a router over the given sources.
func NewRouter(registry *Registry, cases CaseSource, history HistorySource, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		cases:    cases,
		history:  history,
		logger:   logger,
		bindings: make(map[string]map[string]*binding),
		joined:   make(map[string]map[string]struct{}),
	}
}

// Join binds the connection to the case channel. Membership is recomputed
// from current case state on every call; a stale binding never survives a
// reassignment because the rejoin re-checks. On success the connection
// first receives a snapshot of the full ordered history, then every
// subsequently broadcast message. Snapshot and broadcast serialize on the
// router lock, and Broadcast suppresses sequence numbers the snapshot
// already covered, so the boundary has no gap and no duplicate even when a
// message is durable but its broadcast has not run yet.
func (r *Router) Join(ctx context.Context, conn Connection, caseID string) error {
	c, err := r.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return apperrors.MapError(err)
	}
	if !domain.IsChannelMember(conn.Identity(), c) {
		return apperrors.NewNotAuthorized("not a member of this case channel")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msgs, err := r.history.ListByCase(ctx, caseID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	if err := conn.Send(Envelope{Type: EnvelopeSnapshot, CaseID: caseID, Messages: msgs}); err != nil {
		// Peer vanished between upgrade and join; nothing to bind.
		return nil
	}

	var snapshotSeq int64
	if len(msgs) > 0 {
		snapshotSeq = msgs[len(msgs)-1].Seq
	}
	if r.bindings[caseID] == nil {
		r.bindings[caseID] = make(map[string]*binding)
	}
	r.bindings[caseID][conn.ID()] = &binding{conn: conn, snapshotSeq: snapshotSeq}
	if r.joined[conn.ID()] == nil {
		r.joined[conn.ID()] = make(map[string]struct{})
	}
	r.joined[conn.ID()][caseID] = struct{}{}

	r.logger.Debug("channel join",
		zap.String("case_id", caseID),
		zap.String("conn_id", conn.ID()),
		zap.Int("history", len(msgs)))
	return nil
}

// Leave removes the binding; idempotent.
func (r *Router) Leave(conn Connection, caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbind(conn.ID(), caseID)
}

// Broadcast delivers the message to every connection currently bound to the
// case channel, including the sender's own other connections. A binding
// whose join snapshot already covered the message's sequence number is
// skipped: the append becomes durable before Broadcast runs, so a joiner in
// that window has the message in its snapshot. Send failures are dropped;
// the message log is the durable record.
func (r *Router) Broadcast(caseID string, msg *domain.Message) {
	if msg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID, b := range r.bindings[caseID] {
		if msg.Seq > 0 && msg.Seq <= b.snapshotSeq {
			continue
		}
		if err := b.conn.Send(Envelope{Type: EnvelopeMessage, CaseID: caseID, Message: msg}); err != nil {
			r.unbind(connID, caseID)
		}
	}
}

// Disconnect releases every channel binding held by the connection. Called
// synchronously when the connection's lifetime ends, before any further
// event is processed for it.
func (r *Router) Disconnect(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for caseID := range r.joined[conn.ID()] {
		r.unbind(conn.ID(), caseID)
	}
}

func (r *Router) unbind(connID, caseID string) {
	if set, ok := r.bindings[caseID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.bindings, caseID)
		}
	}
	if set, ok := r.joined[connID]; ok {
		delete(set, caseID)
		if len(set) == 0 {
			delete(r.joined, connID)
		}
	}
}
