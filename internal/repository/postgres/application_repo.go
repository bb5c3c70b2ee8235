package postgres

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/hiring-api/internal/domain/entity"
	apperrors "github.com/yourusername/hiring-api/internal/pkg/errors"
)

// ApplicationRepo реализует repository.ApplicationRepository
type ApplicationRepo struct {
	db *gorm.DB
}

// NewApplicationRepo создает новый репозиторий заявок
func NewApplicationRepo(db *gorm.DB) *ApplicationRepo {
	return &ApplicationRepo{db: db}
}

// GetByID возвращает заявку по ID вместе с вакансией
func (r *ApplicationRepo) GetByID(id string) (*entity.Application, error) {
	appID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	var app entity.Application
	err = r.db.Preload("Job").First(&app, "id = ?", appID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &app, nil
}

// GetByIDAndEmail возвращает заявку по ID и email кандидата
func (r *ApplicationRepo) GetByIDAndEmail(id, email string) (*entity.Application, error) {
	appID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	var app entity.Application
	err = r.db.Preload("Job").
		Where("id = ? AND LOWER(email) = ?", appID, strings.ToLower(strings.TrimSpace(email))).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application by email: %w", err)
	}
	return &app, nil
}

// MarkEmailVerified отмечает email заявки подтвержденным и продвигает статус
func (r *ApplicationRepo) MarkEmailVerified(id string, verifiedAt time.Time) error {
	appID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return apperrors.ErrNotFound
	}

	result := r.db.Model(&entity.Application{}).
		Where("id = ?", appID).
		Updates(map[string]interface{}{
			"email_verified":    true,
			"email_verified_at": verifiedAt,
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				entity.ApplicationStatusPending, entity.ApplicationStatusEmailVerified),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark application email verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
