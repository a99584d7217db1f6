package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/realtime"
	"github.com/spec-kit/case-service/internal/repository"
)

// fakeCaseRepo is an in-memory CaseRepository mirroring the SQL semantics:
// CompareAndSetStatus fails with pgx.ErrNoRows when the expected status no
// longer matches.
type fakeCaseRepo struct {
	mu    sync.Mutex
	seq   int
	cases map[string]*domain.Case
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[string]*domain.Case)}
}

func (r *fakeCaseRepo) Create(_ context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = fmt.Sprintf("case-%d", r.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	clone := *c
	r.cases[c.ID] = &clone
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (r *fakeCaseRepo) ListWithFilter(_ context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Case
	for _, c := range r.cases {
		if filter.CustomerID != nil && c.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.AssignedAgentID != nil && (c.AssignedAgentID == nil || *c.AssignedAgentID != *filter.AssignedAgentID) {
			continue
		}
		if filter.Department != nil && c.Department != *filter.Department {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if c.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCaseRepo) CompareAndSetStatus(_ context.Context, id string, expected, next domain.CaseStatus, assignee *string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok || c.Status != expected {
		return nil, pgx.ErrNoRows
	}
	c.Status = next
	if assignee != nil {
		v := *assignee
		c.AssignedAgentID = &v
	}
	c.UpdatedAt = time.Now()
	clone := *c
	return &clone, nil
}

// fakeStaffRepo stores staff members keyed by id.
type fakeStaffRepo struct {
	mu    sync.Mutex
	staff map[string]*domain.StaffMember
}

func newFakeStaffRepo(members ...*domain.StaffMember) *fakeStaffRepo {
	r := &fakeStaffRepo{staff: make(map[string]*domain.StaffMember)}
	for _, m := range members {
		clone := *m
		r.staff[m.ID] = &clone
	}
	return r
}

func (r *fakeStaffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *staff
	r.staff[staff.ID] = &clone
	return nil
}

func (r *fakeStaffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	return r.Create(context.Background(), staff)
}

func (r *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (r *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.staff {
		if m.Email == email {
			clone := *m
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// fakeMessageRepo assigns per-case sequence numbers on append.
type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages map[string][]domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string][]domain.Message)}
}

func (r *fakeMessageRepo) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.Seq = int64(len(r.messages[msg.CaseID]) + 1)
	msg.CreatedAt = time.Now()
	r.messages[msg.CaseID] = append(r.messages[msg.CaseID], *msg)
	return nil
}

func (r *fakeMessageRepo) ListByCase(_ context.Context, caseID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages[caseID]...), nil
}

func (r *fakeMessageRepo) MarkRead(_ context.Context, caseID string, reader domain.SenderRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[caseID]
	for i := range msgs {
		if msgs[i].Sender != reader {
			msgs[i].Read = true
		}
	}
	return nil
}

// fakeNotificationRepo is the in-memory ledger.
type fakeNotificationRepo struct {
	mu      sync.Mutex
	seq     int
	entries []domain.Notification
	failing bool
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{}
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return fmt.Errorf("ledger unavailable")
	}
	r.seq++
	n.ID = fmt.Sprintf("ntf-%d", r.seq)
	n.CreatedAt = time.Now()
	r.entries = append(r.entries, *n)
	return nil
}

func (r *fakeNotificationRepo) ListByRecipient(_ context.Context, subject domain.SubjectType, recipientID string, filter repository.NotificationFilter) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for i := len(r.entries) - 1; i >= 0; i-- {
		n := r.entries[i]
		if n.Recipient != subject || n.RecipientID != recipientID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *fakeNotificationRepo) UnreadCount(_ context.Context, subject domain.SubjectType, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.entries {
		if n.Recipient == subject && n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, subject domain.SubjectType, recipientID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		n := &r.entries[i]
		if n.ID == notificationID && n.Recipient == subject && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, subject domain.SubjectType, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		n := &r.entries[i]
		if n.Recipient == subject && n.RecipientID == recipientID {
			n.Read = true
		}
	}
	return nil
}

func (r *fakeNotificationRepo) Delete(_ context.Context, subject domain.SubjectType, recipientID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		n := r.entries[i]
		if n.ID == notificationID && n.Recipient == subject && n.RecipientID == recipientID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeNotificationRepo) ClearRead(_ context.Context, subject domain.SubjectType, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, n := range r.entries {
		if n.Recipient == subject && n.RecipientID == recipientID && n.Read {
			continue
		}
		kept = append(kept, n)
	}
	r.entries = kept
	return nil
}

// fakeOTPStore keeps codes and verification marks with expiry timestamps.
type fakeOTPStore struct {
	mu       sync.Mutex
	codes    map[string]string
	expiry   map[string]time.Time
	verified map[string]time.Time
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{
		codes:    make(map[string]string),
		expiry:   make(map[string]time.Time),
		verified: make(map[string]time.Time),
	}
}

func otpKey(email, purpose string) string { return purpose + ":" + email }

func (s *fakeOTPStore) PutCode(_ context.Context, email, purpose, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(email, purpose)
	s.codes[key] = code
	s.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (s *fakeOTPStore) GetCode(_ context.Context, email, purpose string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(email, purpose)
	code, ok := s.codes[key]
	if !ok || time.Now().After(s.expiry[key]) {
		return "", repository.ErrCodeNotFound
	}
	return code, nil
}

func (s *fakeOTPStore) DeleteCode(_ context.Context, email, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := otpKey(email, purpose)
	delete(s.codes, key)
	delete(s.expiry, key)
	return nil
}

func (s *fakeOTPStore) MarkVerified(_ context.Context, email, purpose string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[otpKey(email, purpose)] = time.Now().Add(ttl)
	return nil
}

func (s *fakeOTPStore) IsVerified(_ context.Context, email, purpose string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.verified[otpKey(email, purpose)]
	return ok && time.Now().Before(deadline), nil
}

// expireCode forces the code past its TTL.
func (s *fakeOTPStore) expireCode(email, purpose string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry[otpKey(email, purpose)] = time.Now().Add(-time.Second)
}

// captureBroadcaster records broadcast calls.
type captureBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	caseID string
	msg    domain.Message
}

func (b *captureBroadcaster) Broadcast(caseID string, msg *domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{caseID: caseID, msg: *msg})
}

// capturePusher records registry pushes.
type capturePusher struct {
	mu     sync.Mutex
	pushes []pushCall
}

type pushCall struct {
	subject     domain.SubjectType
	recipientID string
	env         realtime.Envelope
}

func (p *capturePusher) Push(subject domain.SubjectType, recipientID string, env realtime.Envelope) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushCall{subject: subject, recipientID: recipientID, env: env})
	return 1
}

// captureDispatcher records published events without invoking handlers.
type captureDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *captureDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *captureDispatcher) published() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}

func strptr(s string) *string { return &s }
