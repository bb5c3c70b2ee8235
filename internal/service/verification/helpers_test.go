package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Моки и вспомогательные функции
// ============================================================================

// MockDispatcher реализует Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendVerificationCode(ctx context.Context, msg CodeEmail) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockDispatcher) SendPrivateInterviewLink(ctx context.Context, msg PrivateLinkEmail) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recordingDispatcher запоминает последние отправленные письма
type recordingDispatcher struct {
	mu    sync.Mutex
	codes []CodeEmail
	links []PrivateLinkEmail
	fail  bool
}

func (d *recordingDispatcher) SendVerificationCode(ctx context.Context, msg CodeEmail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, msg)
	if d.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (d *recordingDispatcher) SendPrivateInterviewLink(ctx context.Context, msg PrivateLinkEmail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, msg)
	if d.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (d *recordingDispatcher) lastCode(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.codes, "no verification email was sent")
	return d.codes[len(d.codes)-1].Code
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCodeManager(t *testing.T, clock *fakeClock, d Dispatcher) *CodeManager {
	t.Helper()
	policy := DefaultPolicy()
	policy.CodePepper = "test-pepper"
	m, err := NewCodeManager(NewSessionStore(policy, clock.Now), d, policy)
	require.NoError(t, err)
	return m
}

func newTestTokenManager(t *testing.T, clock *fakeClock, d Dispatcher) *TokenManager {
	t.Helper()
	policy := DefaultPolicy()
	policy.PublicBaseURL = "https://jobs.example.com/"
	m, err := NewTokenManager(NewTokenStore(clock.Now), d, policy)
	require.NoError(t, err)
	return m
}

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

var testSend = SendRequest{
	ApplicationID:   "app-1",
	Email:           "Candidate@Example.com",
	CandidateName:   "Ada Lovelace",
	JobTitle:        "Backend Engineer",
	CompanyName:     "Acme",
	InterviewLinkID: "link-42",
}
