package repository

import (
	"time"

	"github.com/yourusername/hiring-api/internal/domain/entity"
)

// ApplicationRepository определяет методы для работы с заявками кандидатов
type ApplicationRepository interface {
	// GetByID возвращает заявку вместе с вакансией
	GetByID(id string) (*entity.Application, error)
	// GetByIDAndEmail возвращает заявку, только если email совпадает (без учета регистра)
	GetByIDAndEmail(id, email string) (*entity.Application, error)
	// MarkEmailVerified отмечает email заявки подтвержденным
	MarkEmailVerified(id string, verifiedAt time.Time) error
}
