package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/yourusername/hiring-api/internal/pkg/errors"
	"github.com/yourusername/hiring-api/internal/service/verification"
)

// CandidateVerificationService - единая точка входа веб-слоя для подтверждения email
// и приватных ссылок на интервью
type CandidateVerificationService struct {
	lookup ApplicationLookup
	codes  *verification.CodeManager
	tokens *verification.TokenManager
	stats  *verification.StatsAggregator
}

func NewCandidateVerificationService(
	lookup ApplicationLookup,
	codes *verification.CodeManager,
	tokens *verification.TokenManager,
) (*CandidateVerificationService, error) {
	if lookup == nil {
		return nil, fmt.Errorf("application lookup is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code manager is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	return &CandidateVerificationService{
		lookup: lookup,
		codes:  codes,
		tokens: tokens,
		stats:  verification.NewStatsAggregator(codes, tokens),
	}, nil
}

// SendVerification проверяет пару заявка/email и выдает код
func (s *CandidateVerificationService) SendVerification(ctx context.Context, req verification.SendRequest) (*verification.SendResult, error) {
	app, err := s.confirm(ctx, req.ApplicationID, req.Email)
	if err != nil {
		return nil, err
	}
	return s.codes.Send(ctx, withApplicationDefaults(req, app))
}

// ResendCode - SendVerification с учетом интервала повторной отправки
func (s *CandidateVerificationService) ResendCode(ctx context.Context, req verification.SendRequest) (*verification.SendResult, error) {
	app, err := s.confirm(ctx, req.ApplicationID, req.Email)
	if err != nil {
		return nil, err
	}
	return s.codes.Resend(ctx, withApplicationDefaults(req, app))
}

// VerifyEmail проверяет присланный код. Сохранение флага в заявке остается
// за вызывающим.
func (s *CandidateVerificationService) VerifyEmail(applicationID, email, code string) (*verification.VerifyResult, error) {
	return s.codes.Verify(applicationID, email, code)
}

// GetStatus не обращается к БД
func (s *CandidateVerificationService) GetStatus(applicationID, email string) verification.Status {
	return s.codes.Status(applicationID, email)
}

// ClearVerification удаляет сессию для пары
func (s *CandidateVerificationService) ClearVerification(applicationID, email string) bool {
	return s.codes.Clear(applicationID, email)
}

// GetStats не обращается к БД
func (s *CandidateVerificationService) GetStats() verification.Stats {
	return s.stats.Snapshot()
}

// IssuePrivateLink проверяет заявку и выпускает одноразовый токен.
// Переданные id кандидата и вакансии должны совпадать с заявкой.
func (s *CandidateVerificationService) IssuePrivateLink(ctx context.Context, req verification.IssueRequest) (*verification.IssueResult, error) {
	app, err := s.confirm(ctx, req.ApplicationID, req.Email)
	if err != nil {
		return nil, err
	}
	if !matchesID(req.CandidateID, app.CandidateID) || !matchesID(req.JobID, app.JobID) {
		return nil, verification.ErrApplicationMismatch
	}

	if req.CandidateID == "" {
		req.CandidateID = app.CandidateID
	}
	if req.JobID == "" {
		req.JobID = app.JobID
	}
	if req.CandidateName == "" {
		req.CandidateName = app.CandidateName
	}
	if req.JobTitle == "" {
		req.JobTitle = app.JobTitle
	}
	if req.CompanyName == "" {
		req.CompanyName = app.CompanyName
	}
	return s.tokens.Issue(ctx, req)
}

// ValidatePrivateToken - предварительная проверка без погашения
func (s *CandidateVerificationService) ValidatePrivateToken(token string) (*verification.AccessResult, error) {
	return s.tokens.Validate(strings.TrimSpace(token))
}

// UsePrivateToken погашает токен
func (s *CandidateVerificationService) UsePrivateToken(token string) (*verification.AccessResult, error) {
	return s.tokens.Use(strings.TrimSpace(token))
}

func (s *CandidateVerificationService) confirm(ctx context.Context, applicationID, email string) (*ApplicationInfo, error) {
	app, err := s.lookup.LookupByEmail(ctx, applicationID, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, verification.ErrApplicationMismatch
		}
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}
	return app, nil
}

func withApplicationDefaults(req verification.SendRequest, app *ApplicationInfo) verification.SendRequest {
	if req.CandidateName == "" {
		req.CandidateName = app.CandidateName
	}
	if req.JobTitle == "" {
		req.JobTitle = app.JobTitle
	}
	if req.CompanyName == "" {
		req.CompanyName = app.CompanyName
	}
	return req
}

func matchesID(given, actual string) bool {
	given = strings.TrimSpace(given)
	return given == "" || strings.EqualFold(given, actual)
}
