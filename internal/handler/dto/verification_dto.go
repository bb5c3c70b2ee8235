package dto

import "time"

// SendVerificationRequest представляет запрос на отправку (или повторную отправку) кода
type SendVerificationRequest struct {
	ApplicationID   string `json:"application_id" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	CandidateName   string `json:"candidate_name" binding:"omitempty,max=200"`
	JobTitle        string `json:"job_title" binding:"omitempty,max=200"`
	CompanyName     string `json:"company_name" binding:"omitempty,max=200"`
	InterviewLinkID string `json:"interview_link_id" binding:"omitempty,max=100"`
}

// VerifyEmailRequest представляет запрос на подтверждение email кодом
type VerifyEmailRequest struct {
	ApplicationID string `json:"application_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Code          string `json:"code" binding:"required,len=6,numeric"`
}

// VerificationStatusQuery - параметры запроса статуса
type VerificationStatusQuery struct {
	ApplicationID string `form:"application_id" binding:"required"`
	Email         string `form:"email" binding:"required,email"`
}

// IssuePrivateLinkRequest представляет запрос на выпуск приватной ссылки на интервью
type IssuePrivateLinkRequest struct {
	ApplicationID string `json:"application_id" binding:"required"`
	CandidateID   string `json:"candidate_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	JobID         string `json:"job_id" binding:"required"`
	JobTitle      string `json:"job_title" binding:"omitempty,max=200"`
	CompanyName   string `json:"company_name" binding:"omitempty,max=200"`
	PublicLinkID  string `json:"public_link_id" binding:"omitempty,max=100"`
}

// SendVerificationResponse - ответ на отправку кода
type SendVerificationResponse struct {
	ApplicationID string    `json:"application_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Warning       string    `json:"warning,omitempty"` // Письмо не доставлено, код при этом действителен
}

// IssuePrivateLinkResponse - ответ на выпуск приватной ссылки
type IssuePrivateLinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Warning   string    `json:"warning,omitempty"`
}
