package entity

import (
	"time"

	"github.com/google/uuid"
)

// Статусы заявки кандидата
const (
	ApplicationStatusPending       = "pending"
	ApplicationStatusEmailVerified = "email_verified"
	ApplicationStatusInterviewing  = "interviewing"
)

// Job - вакансия, на которую подана заявка
type Job struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	CompanyName string    `gorm:"size:200;not null;default:''" json:"company_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Job) TableName() string {
	return "jobs"
}

// Application представляет заявку кандидата на вакансию
type Application struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	Job             *Job       `gorm:"foreignKey:JobID" json:"job,omitempty"`
	CandidateID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"candidate_id"`
	CandidateName   string     `gorm:"size:200;not null;default:''" json:"candidate_name"`
	Email           string     `gorm:"size:100;not null;index" json:"email"`
	Status          string     `gorm:"size:30;not null;default:'pending'" json:"status"`
	EmailVerified   bool       `gorm:"not null;default:false" json:"email_verified"`
	EmailVerifiedAt *time.Time `gorm:"type:timestamp" json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Application) TableName() string {
	return "applications"
}

// JobTitle возвращает название вакансии, если она загружена
func (a *Application) JobTitle() string {
	if a.Job == nil {
		return ""
	}
	return a.Job.Title
}

// CompanyName возвращает название компании, если вакансия загружена
func (a *Application) CompanyName() string {
	if a.Job == nil {
		return ""
	}
	return a.Job.CompanyName
}
