package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yourusername/hiring-api/internal/store"
)

const privateTokenBytes = 32

// TokenMetadata - данные для отображения, возвращаемые при предоставлении доступа
type TokenMetadata struct {
	ApplicationID string    `json:"application_id"`
	CandidateID   string    `json:"candidate_id"`
	JobID         string    `json:"job_id"`
	Email         string    `json:"email"`
	CandidateName string    `json:"candidate_name,omitempty"`
	JobTitle      string    `json:"job_title,omitempty"`
	CompanyName   string    `json:"company_name,omitempty"`
	PublicLinkID  string    `json:"public_link_id,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// PrivateToken - хранимое состояние одной приватной ссылки на интервью
type PrivateToken struct {
	Metadata TokenMetadata
	Used     bool
	UsedAt   time.Time
}

// IssueRequest содержит данные для выпуска приватной ссылки
type IssueRequest struct {
	ApplicationID string
	CandidateID   string
	Email         string
	JobID         string
	CandidateName string
	JobTitle      string
	CompanyName   string
	PublicLinkID  string
}

// IssueResult возвращается после сохранения токена
type IssueResult struct {
	Token       string
	URL         string
	ExpiresAt   time.Time
	DispatchErr error
}

// AccessResult возвращают Validate и Use
type AccessResult struct {
	Metadata TokenMetadata
	UsedAt   *time.Time
}

// TokenManager выпускает, проверяет и погашает одноразовые токены интервью
type TokenManager struct {
	tokens     *store.ExpiringStore[PrivateToken]
	dispatcher Dispatcher
	policy     Policy
	tokenGen   func() (string, error)
}

// NewTokenManager создает менеджер приватных ссылок поверх переданного хранилища
func NewTokenManager(tokens *store.ExpiringStore[PrivateToken], dispatcher Dispatcher, policy Policy) (*TokenManager, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("email dispatcher is required")
	}
	return &TokenManager{
		tokens:     tokens,
		dispatcher: dispatcher,
		policy:     policy.WithDefaults(),
		tokenGen:   generatePrivateToken,
	}, nil
}

// SetTokenGenerator заменяет генератор токенов (используется в тестах)
func (m *TokenManager) SetTokenGenerator(gen func() (string, error)) {
	if gen != nil {
		m.tokenGen = gen
	}
}

// Issue сохраняет новый неиспользованный токен и отправляет ссылку на email
func (m *TokenManager) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	token, err := m.tokenGen()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private token: %w", err)
	}

	now := m.tokens.Now()
	meta := TokenMetadata{
		ApplicationID: req.ApplicationID,
		CandidateID:   req.CandidateID,
		JobID:         req.JobID,
		Email:         normalizeEmail(req.Email),
		CandidateName: req.CandidateName,
		JobTitle:      req.JobTitle,
		CompanyName:   req.CompanyName,
		PublicLinkID:  req.PublicLinkID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(m.policy.TokenTTL),
	}
	entry := m.tokens.Put(token, PrivateToken{Metadata: meta}, m.policy.TokenTTL)

	result := &IssueResult{
		Token:     token,
		URL:       m.URL(token),
		ExpiresAt: entry.ExpiresAt,
	}

	msg := PrivateLinkEmail{
		To:             meta.Email,
		URL:            result.URL,
		CandidateName:  meta.CandidateName,
		JobTitle:       meta.JobTitle,
		CompanyName:    meta.CompanyName,
		ExpiresAt:      entry.ExpiresAt,
		IdempotencyKey: "private-link:" + tokenPrefix(token),
	}
	if err := m.dispatcher.SendPrivateInterviewLink(ctx, msg); err != nil {
		log.Printf("[TokenManager] Failed to send private link application=%s: %v", req.ApplicationID, err)
		result.DispatchErr = fmt.Errorf("failed to send private interview link: %w", err)
	}
	return result, nil
}

// Validate - предварительная проверка, токен не изменяется
func (m *TokenManager) Validate(token string) (*AccessResult, error) {
	entry, ok := m.tokens.Peek(token)
	if !ok {
		return nil, ErrTokenNotFound
	}
	if err := classifyToken(entry, m.tokens.Now()); err != nil {
		return nil, err
	}
	return &AccessResult{Metadata: entry.Value.Metadata}, nil
}

// Use погашает токен. Из параллельных вызовов успешен ровно один,
// остальные получают TokenAlreadyUsed.
func (m *TokenManager) Use(token string) (*AccessResult, error) {
	entry, outcome := m.tokens.CompareAndUpdate(token,
		func(e store.Entry[PrivateToken]) bool {
			return !e.Value.Used
		},
		func(e *store.Entry[PrivateToken]) {
			now := m.tokens.Now()
			e.Value.Used = true
			e.Value.UsedAt = now
			e.RetainUntil = now.Add(m.policy.UsedTokenRetention)
		},
	)

	switch outcome {
	case store.NotFound:
		return nil, ErrTokenNotFound
	case store.Expired, store.Rejected:
		if err := classifyToken(entry, m.tokens.Now()); err != nil {
			return nil, err
		}
		return nil, ErrTokenAlreadyUsed
	}

	usedAt := entry.Value.UsedAt
	log.Printf("[TokenManager] Private link used application=%s job=%s", entry.Value.Metadata.ApplicationID, entry.Value.Metadata.JobID)
	return &AccessResult{Metadata: entry.Value.Metadata, UsedAt: &usedAt}, nil
}

// URL формирует ссылку для кандидата
func (m *TokenManager) URL(token string) string {
	return strings.TrimRight(m.policy.PublicBaseURL, "/") + "/interview/private/" + token
}

// classifyToken: использованный токен считается использованным и после истечения срока
func classifyToken(entry store.Entry[PrivateToken], now time.Time) error {
	if entry.Value.Used {
		return ErrTokenAlreadyUsed
	}
	if !entry.Live(now) {
		return ErrTokenExpired
	}
	return nil
}

func tokenPrefix(token string) string {
	if len(token) > 16 {
		return token[:16]
	}
	return token
}

func generatePrivateToken() (string, error) {
	b := make([]byte, privateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
