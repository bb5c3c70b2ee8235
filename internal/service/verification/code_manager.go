package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/yourusername/hiring-api/internal/store"
)

// Session - состояние одной проверки email в памяти, ключ: id заявки и
// нормализованный email. Сам код хранится только в виде хеша.
type Session struct {
	ApplicationID string
	Email         string
	CodeHash      string
	CodeSalt      string
	AttemptsUsed  int
	MaxAttempts   int
	LastSentAt    time.Time
	Verified      bool
	VerifiedAt    time.Time
	Payload       CandidateData
}

// SessionState - состояние сессии, которое возвращает Status
type SessionState string

const (
	StateNone     SessionState = "none"
	StatePending  SessionState = "pending"
	StateVerified SessionState = "verified"
	StateExpired  SessionState = "expired"
	StateLocked   SessionState = "locked"
)

// SendRequest содержит данные для отправки кода подтверждения
type SendRequest struct {
	ApplicationID   string
	Email           string
	CandidateName   string
	JobTitle        string
	CompanyName     string
	InterviewLinkID string
}

// SendResult возвращается после сохранения кода. DispatchErr заполнен, если
// письмо не доставлено, код при этом остается действительным.
type SendResult struct {
	ApplicationID string
	ExpiresAt     time.Time
	DispatchErr   error
}

// VerifyResult - результат успешного Verify
type VerifyResult struct {
	Verified      bool
	VerifiedAt    time.Time
	CandidateData CandidateData
}

// Status - представление сессии только для чтения
type Status struct {
	State             SessionState `json:"state"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	RemainingAttempts int          `json:"remaining_attempts"`
	VerifiedAt        *time.Time   `json:"verified_at,omitempty"`
	CanResend         bool         `json:"can_resend"`
	ResendAvailableIn int          `json:"resend_available_in_sec"`
}

// CodeManager выдает, переотправляет и проверяет одноразовые коды подтверждения email
type CodeManager struct {
	sessions   *store.ExpiringStore[Session]
	dispatcher Dispatcher
	policy     Policy
	codeGen    func() (string, error)
}

// NewCodeManager создает менеджер кодов поверх переданного хранилища
func NewCodeManager(sessions *store.ExpiringStore[Session], dispatcher Dispatcher, policy Policy) (*CodeManager, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("email dispatcher is required")
	}
	return &CodeManager{
		sessions:   sessions,
		dispatcher: dispatcher,
		policy:     policy.WithDefaults(),
		codeGen:    generateVerificationCode,
	}, nil
}

// SetCodeGenerator заменяет генератор кодов (используется в тестах)
func (m *CodeManager) SetCodeGenerator(gen func() (string, error)) {
	if gen != nil {
		m.codeGen = gen
	}
}

// Send выдает новый код для пары, заменяя предыдущую сессию.
func (m *CodeManager) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	code, salt, err := m.newCode()
	if err != nil {
		return nil, err
	}

	now := m.sessions.Now()
	sess := m.newSession(req, code, salt, now)
	entry := m.sessions.Put(sessionKey(req.ApplicationID, req.Email), sess, m.policy.CodeTTL)

	return &SendResult{
		ApplicationID: req.ApplicationID,
		ExpiresAt:     entry.ExpiresAt,
		DispatchErr:   m.dispatch(ctx, sess, code, now),
	}, nil
}

// Resend выдает новый код, если с последней отправки прошел интервал ожидания.
// Подтвержденная сессия не переиздается. Без живой сессии код создается заново,
// но только одним из параллельных вызовов.
func (m *CodeManager) Resend(ctx context.Context, req SendRequest) (*SendResult, error) {
	code, salt, err := m.newCode()
	if err != nil {
		return nil, err
	}

	key := sessionKey(req.ApplicationID, req.Email)
	var sentAt time.Time
	entry, outcome := m.sessions.CompareAndUpdate(key,
		func(e store.Entry[Session]) bool {
			return !e.Value.Verified && m.sessions.Now().Sub(e.Value.LastSentAt) >= m.policy.ResendCooldown
		},
		func(e *store.Entry[Session]) {
			now := m.sessions.Now()
			sentAt = now
			e.Value.CodeHash = hashVerificationCode(code, salt, m.policy.CodePepper)
			e.Value.CodeSalt = salt
			e.Value.AttemptsUsed = 0
			e.Value.MaxAttempts = m.policy.MaxAttempts
			e.Value.LastSentAt = now
			e.Value.Payload = payloadFrom(req)
			e.ExpiresAt = now.Add(m.policy.CodeTTL)
			e.RetainUntil = e.ExpiresAt.Add(m.policy.StatusGrace)
		},
	)

	switch outcome {
	case store.Applied:
		return &SendResult{
			ApplicationID: req.ApplicationID,
			ExpiresAt:     entry.ExpiresAt,
			DispatchErr:   m.dispatch(ctx, entry.Value, code, sentAt),
		}, nil
	case store.Rejected:
		return nil, m.resendRefusal(entry.Value)
	case store.Expired:
		if entry.Value.Verified {
			return nil, ErrAlreadyVerified
		}
		if m.cooldownLeft(entry.Value) > 0 {
			return nil, m.resendRefusal(entry.Value)
		}
	}

	// Живой сессии нет: вставляем новую, если никто не успел раньше
	now := m.sessions.Now()
	sess := m.newSession(req, code, salt, now)
	inserted, ok := m.sessions.PutIfVacant(key, sess, m.policy.CodeTTL)
	if !ok {
		log.Printf("[CodeManager] Concurrent resend for application=%s, keeping existing code", req.ApplicationID)
		return nil, m.resendRefusal(inserted.Value)
	}
	return &SendResult{
		ApplicationID: req.ApplicationID,
		ExpiresAt:     inserted.ExpiresAt,
		DispatchErr:   m.dispatch(ctx, sess, code, now),
	}, nil
}

func (m *CodeManager) cooldownLeft(sess Session) time.Duration {
	return sess.LastSentAt.Add(m.policy.ResendCooldown).Sub(m.sessions.Now())
}

// resendRefusal объясняет, почему живую сессию нельзя переиздать
func (m *CodeManager) resendRefusal(sess Session) error {
	if sess.Verified {
		return ErrAlreadyVerified
	}
	return resendTooSoon(m.cooldownLeft(sess))
}

// Verify проверяет присланный код. Несовпадение тратит одну попытку,
// несовпадение на последней попытке возвращается как AttemptsExceeded.
func (m *CodeManager) Verify(applicationID, email, submitted string) (*VerifyResult, error) {
	key := sessionKey(applicationID, email)
	matched := false

	entry, outcome := m.sessions.CompareAndUpdate(key,
		func(e store.Entry[Session]) bool {
			return !e.Value.Verified && e.Value.AttemptsUsed < e.Value.MaxAttempts
		},
		func(e *store.Entry[Session]) {
			expected := hashVerificationCode(strings.TrimSpace(submitted), e.Value.CodeSalt, m.policy.CodePepper)
			if subtle.ConstantTimeCompare([]byte(expected), []byte(e.Value.CodeHash)) != 1 {
				e.Value.AttemptsUsed++
				return
			}
			now := m.sessions.Now()
			matched = true
			e.Value.Verified = true
			e.Value.VerifiedAt = now
			e.RetainUntil = now.Add(m.policy.StatusGrace)
		},
	)

	switch outcome {
	case store.NotFound:
		return nil, ErrSessionNotFound
	case store.Expired:
		if entry.Value.Verified {
			return nil, ErrAlreadyVerified
		}
		return nil, ErrCodeExpired
	case store.Rejected:
		if entry.Value.Verified {
			return nil, ErrAlreadyVerified
		}
		return nil, ErrAttemptsExceeded
	}

	if !matched {
		remaining := entry.Value.MaxAttempts - entry.Value.AttemptsUsed
		if remaining <= 0 {
			log.Printf("[CodeManager] Attempts exhausted for application=%s", applicationID)
			return nil, ErrAttemptsExceeded
		}
		return nil, codeMismatch(remaining)
	}

	return &VerifyResult{
		Verified:      true,
		VerifiedAt:    entry.Value.VerifiedAt,
		CandidateData: entry.Value.Payload,
	}, nil
}

// Status возвращает состояние сессии, не изменяя ее. Код никогда не раскрывается.
func (m *CodeManager) Status(applicationID, email string) Status {
	entry, ok := m.sessions.Peek(sessionKey(applicationID, email))
	if !ok {
		return Status{State: StateNone, CanResend: true}
	}

	now := m.sessions.Now()
	sess := entry.Value
	status := Status{}

	switch {
	case sess.Verified:
		verifiedAt := sess.VerifiedAt
		status.State = StateVerified
		status.VerifiedAt = &verifiedAt
		return status
	case !entry.Live(now):
		status.State = StateExpired
	case sess.AttemptsUsed >= sess.MaxAttempts:
		status.State = StateLocked
	default:
		expiresAt := entry.ExpiresAt
		status.State = StatePending
		status.ExpiresAt = &expiresAt
		status.RemainingAttempts = sess.MaxAttempts - sess.AttemptsUsed
	}

	cooldown := ceilSeconds(sess.LastSentAt.Add(m.policy.ResendCooldown).Sub(now))
	if cooldown > 0 {
		status.ResendAvailableIn = cooldown
	} else {
		status.CanResend = true
	}
	return status
}

// Clear удаляет сессию, например после сохранения подтверждения в БД
func (m *CodeManager) Clear(applicationID, email string) bool {
	return m.sessions.Delete(sessionKey(applicationID, email))
}

// Policy возвращает действующую политику
func (m *CodeManager) Policy() Policy {
	return m.policy
}

func (m *CodeManager) newSession(req SendRequest, code, salt string, now time.Time) Session {
	return Session{
		ApplicationID: req.ApplicationID,
		Email:         normalizeEmail(req.Email),
		CodeHash:      hashVerificationCode(code, salt, m.policy.CodePepper),
		CodeSalt:      salt,
		MaxAttempts:   m.policy.MaxAttempts,
		LastSentAt:    now,
		Payload:       payloadFrom(req),
	}
}

func (m *CodeManager) newCode() (code, salt string, err error) {
	code, err = m.codeGen()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	salt, err = generateVerificationSalt()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate verification salt: %w", err)
	}
	return code, salt, nil
}

func (m *CodeManager) dispatch(ctx context.Context, sess Session, code string, sentAt time.Time) error {
	msg := CodeEmail{
		To:             sess.Email,
		Code:           code,
		CandidateName:  sess.Payload.CandidateName,
		JobTitle:       sess.Payload.JobTitle,
		CompanyName:    sess.Payload.CompanyName,
		ExpiresIn:      m.policy.CodeTTL,
		IdempotencyKey: fmt.Sprintf("email-verify:%s:%d", sess.ApplicationID, sentAt.UnixNano()),
	}
	if err := m.dispatcher.SendVerificationCode(ctx, msg); err != nil {
		log.Printf("[CodeManager] Failed to send verification email application=%s: %v", sess.ApplicationID, err)
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

func payloadFrom(req SendRequest) CandidateData {
	return CandidateData{
		ApplicationID:   req.ApplicationID,
		Email:           normalizeEmail(req.Email),
		CandidateName:   req.CandidateName,
		JobTitle:        req.JobTitle,
		CompanyName:     req.CompanyName,
		InterviewLinkID: req.InterviewLinkID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sessionKey(applicationID, email string) string {
	return strings.TrimSpace(applicationID) + ":" + normalizeEmail(email)
}

func generateVerificationCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateVerificationSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashVerificationCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
