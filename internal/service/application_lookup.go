package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yourusername/hiring-api/internal/domain/entity"
	"github.com/yourusername/hiring-api/internal/domain/repository"
	apperrors "github.com/yourusername/hiring-api/internal/pkg/errors"
)

// ApplicationInfo - данные заявки, нужные для подтверждения email и приватных ссылок
type ApplicationInfo struct {
	ApplicationID string `json:"application_id"`
	CandidateID   string `json:"candidate_id"`
	JobID         string `json:"job_id"`
	Email         string `json:"email"`
	CandidateName string `json:"candidate_name"`
	JobTitle      string `json:"job_title"`
	CompanyName   string `json:"company_name"`
	EmailVerified bool   `json:"email_verified"`
}

// ApplicationLookup подтверждает существование заявки. Оба метода возвращают
// apperrors.ErrNotFound, если заявки нет (или email не совпадает).
type ApplicationLookup interface {
	Lookup(ctx context.Context, applicationID string) (*ApplicationInfo, error)
	LookupByEmail(ctx context.Context, applicationID, email string) (*ApplicationInfo, error)
}

// RepositoryApplicationLookup читает заявки из основной БД
type RepositoryApplicationLookup struct {
	repo repository.ApplicationRepository
}

func NewRepositoryApplicationLookup(repo repository.ApplicationRepository) (*RepositoryApplicationLookup, error) {
	if repo == nil {
		return nil, fmt.Errorf("application repository is required")
	}
	return &RepositoryApplicationLookup{repo: repo}, nil
}

func (l *RepositoryApplicationLookup) Lookup(ctx context.Context, applicationID string) (*ApplicationInfo, error) {
	app, err := l.repo.GetByID(applicationID)
	if err != nil {
		return nil, err
	}
	return applicationInfoFrom(app), nil
}

func (l *RepositoryApplicationLookup) LookupByEmail(ctx context.Context, applicationID, email string) (*ApplicationInfo, error) {
	app, err := l.repo.GetByIDAndEmail(applicationID, email)
	if err != nil {
		return nil, err
	}
	return applicationInfoFrom(app), nil
}

func applicationInfoFrom(app *entity.Application) *ApplicationInfo {
	return &ApplicationInfo{
		ApplicationID: app.ID.String(),
		CandidateID:   app.CandidateID.String(),
		JobID:         app.JobID.String(),
		Email:         strings.ToLower(app.Email),
		CandidateName: app.CandidateName,
		JobTitle:      app.JobTitle(),
		CompanyName:   app.CompanyName(),
		EmailVerified: app.EmailVerified,
	}
}

// CachedApplicationLookup кеширует успешные результаты. Ошибки кеша логируются,
// запрос уходит в обернутый lookup.
type CachedApplicationLookup struct {
	next  ApplicationLookup
	cache repository.CacheRepository
	ttl   time.Duration
}

func NewCachedApplicationLookup(next ApplicationLookup, cache repository.CacheRepository, ttl time.Duration) (*CachedApplicationLookup, error) {
	if next == nil {
		return nil, fmt.Errorf("application lookup is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache repository is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedApplicationLookup{next: next, cache: cache, ttl: ttl}, nil
}

func (l *CachedApplicationLookup) Lookup(ctx context.Context, applicationID string) (*ApplicationInfo, error) {
	return l.cached(ctx, applicationID, func() (*ApplicationInfo, error) {
		return l.next.Lookup(ctx, applicationID)
	})
}

func (l *CachedApplicationLookup) LookupByEmail(ctx context.Context, applicationID, email string) (*ApplicationInfo, error) {
	info, err := l.cached(ctx, applicationID, func() (*ApplicationInfo, error) {
		return l.next.LookupByEmail(ctx, applicationID, email)
	})
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(info.Email, strings.TrimSpace(email)) {
		return nil, apperrors.ErrNotFound
	}
	return info, nil
}

// Invalidate удаляет запись из кеша, например после обновления заявки
func (l *CachedApplicationLookup) Invalidate(ctx context.Context, applicationID string) {
	if err := l.cache.Delete(ctx, applicationCacheKey(applicationID)); err != nil {
		log.Printf("[ApplicationLookup] Failed to invalidate cache for application=%s: %v", applicationID, err)
	}
}

func (l *CachedApplicationLookup) cached(ctx context.Context, applicationID string, load func() (*ApplicationInfo, error)) (*ApplicationInfo, error) {
	key := applicationCacheKey(applicationID)

	var info ApplicationInfo
	err := l.cache.GetJSON(ctx, key, &info)
	if err == nil {
		return &info, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[ApplicationLookup] Cache read failed for application=%s: %v", applicationID, err)
	}

	loaded, err := load()
	if err != nil {
		return nil, err
	}
	if err := l.cache.SetJSON(ctx, key, loaded, l.ttl); err != nil {
		log.Printf("[ApplicationLookup] Cache write failed for application=%s: %v", applicationID, err)
	}
	return loaded, nil
}

func applicationCacheKey(applicationID string) string {
	return "application:" + strings.TrimSpace(applicationID)
}

// UnavailableApplicationLookup используется без БД. Любой запрос завершается ошибкой,
// поэтому для непроверенной заявки ничего не выдается.
type UnavailableApplicationLookup struct{}

func (UnavailableApplicationLookup) Lookup(ctx context.Context, applicationID string) (*ApplicationInfo, error) {
	return nil, apperrors.ErrUnavailable
}

func (UnavailableApplicationLookup) LookupByEmail(ctx context.Context, applicationID, email string) (*ApplicationInfo, error) {
	return nil, apperrors.ErrUnavailable
}
