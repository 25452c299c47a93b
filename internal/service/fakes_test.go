package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/mailer"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
	"github.com/unclebandit/mailcampaign-sender/internal/queue"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
)

// MockCampaignRepo keeps campaigns in memory
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	getErr    error
	started   []string
	completed map[string]string
	updates   []string
}

func newMockCampaignRepo(campaigns ...*model.Campaign) *MockCampaignRepo {
	m := &MockCampaignRepo{campaigns: map[string]*model.Campaign{}, completed: map[string]string{}}
	for _, c := range campaigns {
		m.campaigns[c.ID] = c
	}
	return m
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, id)
	if c, ok := m.campaigns[id]; ok {
		c.Status = model.CampaignSending
		c.StartedAt = &startedAt
	}
	return nil
}

func (m *MockCampaignRepo) MarkCompleted(ctx context.Context, id, status string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[id] = status
	if c, ok := m.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (m *MockCampaignRepo) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	m.updates = append(m.updates, status)
	return nil
}

func (m *MockCampaignRepo) completedStatus(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.completed[id]
	return s, ok
}

type sentRecord struct {
	MessageID string
	Provider  string
}

// MockRecipientRepo records every state write
type MockRecipientRepo struct {
	mu         sync.Mutex
	recipients []*model.Recipient
	listErr    error
	sending    []string
	sent       map[string]sentRecord
	failures   map[string]repository.FailureUpdate
	counts     map[string]int
	requeued   int
	cancelled  int
}

func newMockRecipientRepo(recipients ...*model.Recipient) *MockRecipientRepo {
	return &MockRecipientRepo{
		recipients: recipients,
		sent:       map[string]sentRecord{},
		failures:   map[string]repository.FailureUpdate{},
	}
}

func (m *MockRecipientRepo) ListDispatchable(ctx context.Context, campaignID string) ([]*model.Recipient, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.recipients, nil
}

func (m *MockRecipientRepo) MarkSending(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sending = append(m.sending, id)
	return nil
}

func (m *MockRecipientRepo) MarkSent(ctx context.Context, id, messageID, provider string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[id] = sentRecord{MessageID: messageID, Provider: provider}
	return nil
}

func (m *MockRecipientRepo) MarkFailed(ctx context.Context, id string, f repository.FailureUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = f
	return nil
}

func (m *MockRecipientRepo) StatusCounts(ctx context.Context, campaignID string) (map[string]int, error) {
	return m.counts, nil
}

func (m *MockRecipientRepo) RequeueFailed(ctx context.Context, campaignID string) (int, error) {
	return m.requeued, nil
}

func (m *MockRecipientRepo) CancelPending(ctx context.Context, campaignID string) (int, error) {
	return m.cancelled, nil
}

type MockMemberRepo struct {
	members map[string]*model.Member
	err     error
}

func (m *MockMemberRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Member, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]*model.Member, len(ids))
	for _, id := range ids {
		if mem, ok := m.members[id]; ok {
			out[id] = mem
		}
	}
	return out, nil
}

type MockEventRepo struct {
	mu     sync.Mutex
	events []*model.CampaignEvent
}

func (m *MockEventRepo) Append(ctx context.Context, e *model.CampaignEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return nil
}

func (m *MockEventRepo) Recent(ctx context.Context, campaignID string, limit int) ([]*model.CampaignEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *MockEventRepo) byType(eventType string) []*model.CampaignEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CampaignEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type MockCredentialRepo struct {
	mu      sync.Mutex
	creds   map[string]*model.Credential
	updates int
}

func (m *MockCredentialRepo) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, appErrors.NewCredentialNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCredentialRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	c := m.creds[id]
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.ExpiresAt = expiresAt
	return nil
}

type MockLogRepo struct {
	beats atomic.Int32
}

func (m *MockLogRepo) Append(ctx context.Context, campaignID, message string, at time.Time) error {
	m.beats.Add(1)
	return nil
}

type MockTokens struct {
	token *AccessToken
	err   error
	calls atomic.Int32
}

func (m *MockTokens) ValidToken(ctx context.Context, tokenID string) (*AccessToken, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

// MockMailer tracks concurrency and the tokens and envelopes it was given.
type MockMailer struct {
	mu        sync.Mutex
	delay     time.Duration
	fail      map[string]string
	panicOn   string
	envelopes []mailer.Envelope
	tokens    map[string]int
	inflight  atomic.Int32
	maxSeen   atomic.Int32
}

func (m *MockMailer) Send(ctx context.Context, accessToken string, env mailer.Envelope) mailer.Result {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.envelopes = append(m.envelopes, env)
	if m.tokens == nil {
		m.tokens = map[string]int{}
	}
	m.tokens[accessToken]++
	m.mu.Unlock()

	if env.ToAddress == m.panicOn {
		panic("dispatcher exploded")
	}
	if msg, ok := m.fail[env.ToAddress]; ok {
		return mailer.Result{StatusCode: 429, Error: msg}
	}
	return mailer.Result{Success: true, StatusCode: 202, MessageID: "msg-" + env.ToAddress}
}

type MockQueue struct {
	mu        sync.Mutex
	published []queue.SendJob
	err       error
}

func (m *MockQueue) Publish(ctx context.Context, topic string, job queue.SendJob) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, job)
	return nil
}

func (m *MockQueue) Subscribe(topic string, handler queue.Handler) error { return nil }

type MockRunner struct {
	calls atomic.Int32
	res   *SendResult
	err   error
}

func (m *MockRunner) Run(ctx context.Context, campaignID string) (*SendResult, error) {
	m.calls.Add(1)
	return m.res, m.err
}
