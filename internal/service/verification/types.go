package verification

import (
	"context"
	"time"
)

// Значения политики по умолчанию
const (
	DefaultCodeLength         = 6
	DefaultCodeTTL            = 10 * time.Minute
	DefaultMaxAttempts        = 5
	DefaultResendCooldown     = 60 * time.Second
	DefaultStatusGrace        = 30 * time.Minute
	DefaultTokenTTL           = 72 * time.Hour
	DefaultUsedTokenRetention = 7 * 24 * time.Hour
	DefaultReapInterval       = time.Minute
)

// Policy содержит настройки кодов подтверждения и приватных ссылок
type Policy struct {
	CodeTTL        time.Duration // Время жизни кода подтверждения
	MaxAttempts    int           // Количество неверных попыток до блокировки
	ResendCooldown time.Duration // Минимальный интервал между отправками кода
	StatusGrace    time.Duration // Сколько истекшая сессия остается видимой для статуса

	TokenTTL           time.Duration // Время жизни приватной ссылки
	UsedTokenRetention time.Duration // Сколько использованный токен хранится для обнаружения повторов

	ReapInterval  time.Duration // Интервал фоновой очистки
	CodePepper    string        // Секрет, подмешиваемый в хеш кода
	PublicBaseURL string        // Базовый URL фронтенда для приватных ссылок
}

// DefaultPolicy возвращает политику по умолчанию
func DefaultPolicy() Policy {
	return Policy{
		CodeTTL:            DefaultCodeTTL,
		MaxAttempts:        DefaultMaxAttempts,
		ResendCooldown:     DefaultResendCooldown,
		StatusGrace:        DefaultStatusGrace,
		TokenTTL:           DefaultTokenTTL,
		UsedTokenRetention: DefaultUsedTokenRetention,
		ReapInterval:       DefaultReapInterval,
		PublicBaseURL:      "http://localhost:3000",
	}
}

// WithDefaults заполняет нулевые поля значениями из DefaultPolicy
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.CodeTTL <= 0 {
		p.CodeTTL = d.CodeTTL
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.ResendCooldown <= 0 {
		p.ResendCooldown = d.ResendCooldown
	}
	if p.StatusGrace < 0 {
		p.StatusGrace = 0
	}
	if p.TokenTTL <= 0 {
		p.TokenTTL = d.TokenTTL
	}
	if p.UsedTokenRetention <= 0 {
		p.UsedTokenRetention = d.UsedTokenRetention
	}
	if p.ReapInterval <= 0 {
		p.ReapInterval = d.ReapInterval
	}
	if p.PublicBaseURL == "" {
		p.PublicBaseURL = d.PublicBaseURL
	}
	return p
}

// CandidateData - данные кандидата, которые переносятся от отправки кода до успешной проверки
type CandidateData struct {
	ApplicationID   string `json:"application_id"`
	Email           string `json:"email"`
	CandidateName   string `json:"candidate_name"`
	JobTitle        string `json:"job_title"`
	CompanyName     string `json:"company_name,omitempty"`
	InterviewLinkID string `json:"interview_link_id,omitempty"`
}

// CodeEmail передается в Dispatcher после сохранения кода
type CodeEmail struct {
	To             string
	Code           string
	CandidateName  string
	JobTitle       string
	CompanyName    string
	ExpiresIn      time.Duration
	IdempotencyKey string
}

// PrivateLinkEmail передается в Dispatcher после сохранения токена
type PrivateLinkEmail struct {
	To             string
	URL            string
	CandidateName  string
	JobTitle       string
	CompanyName    string
	ExpiresAt      time.Time
	IdempotencyKey string
}

// Dispatcher отправляет письма кандидатам. Доставка не гарантируется: ошибка
// возвращается вызывающему, но сохраненный код или токен не откатывается.
type Dispatcher interface {
	SendVerificationCode(ctx context.Context, msg CodeEmail) error
	SendPrivateInterviewLink(ctx context.Context, msg PrivateLinkEmail) error
}
