package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/hiring-api/internal/handler/dto"
	"github.com/yourusername/hiring-api/internal/middleware"
	apperrors "github.com/yourusername/hiring-api/internal/pkg/errors"
	"github.com/yourusername/hiring-api/internal/service"
	"github.com/yourusername/hiring-api/internal/service/verification"
)

// privateTokenKey - ключ контекста с провалидированным токеном
const privateTokenKey = "privateToken"

// ApplicationVerifier сохраняет флаг подтверждения email в заявке.
// MarkEmailVerified должен быть идемпотентным.
type ApplicationVerifier interface {
	MarkEmailVerified(id string, verifiedAt time.Time) error
}

// lookupInvalidator реализуют кеширующие lookup
type lookupInvalidator interface {
	Invalidate(ctx context.Context, applicationID string)
}

// VerificationHandler обрабатывает запросы подтверждения email и приватных ссылок
type VerificationHandler struct {
	verificationService *service.CandidateVerificationService
	applications        ApplicationVerifier
	invalidator         lookupInvalidator
}

// NewVerificationHandler создает новый обработчик. applications может быть nil,
// тогда подтверждение не сохраняется в БД.
func NewVerificationHandler(verificationService *service.CandidateVerificationService, applications ApplicationVerifier, lookup service.ApplicationLookup) *VerificationHandler {
	h := &VerificationHandler{
		verificationService: verificationService,
		applications:        applications,
	}
	if inv, ok := lookup.(lookupInvalidator); ok {
		h.invalidator = inv
	}
	return h
}

// RegisterRoutes подключает маршруты к группе /api/verification
func (h *VerificationHandler) RegisterRoutes(group *gin.RouterGroup) {
	email := group.Group("/email")
	{
		email.POST("/send", h.SendVerification)
		email.POST("/resend", h.ResendCode)
		email.POST("/verify", h.VerifyEmail)
		email.GET("/status", h.GetStatus)
		email.DELETE("/session", h.ClearSession)
	}

	group.GET("/stats", h.GetStats)
	group.GET("/stats/export", h.ExportStats)

	links := group.Group("/private-links")
	{
		links.POST("", h.IssuePrivateLink)
		withToken := links.Group("/:token")
		withToken.Use(middleware.ExtractTokenParam("token", privateTokenKey))
		{
			withToken.GET("", h.ValidatePrivateToken)
			withToken.POST("/use", h.UsePrivateToken)
		}
	}
}

// SendVerification отправляет код подтверждения на email кандидата
func (h *VerificationHandler) SendVerification(c *gin.Context) {
	h.send(c, false)
}

// ResendCode повторно отправляет код с учетом интервала
func (h *VerificationHandler) ResendCode(c *gin.Context) {
	h.send(c, true)
}

func (h *VerificationHandler) send(c *gin.Context, resend bool) {
	var req dto.SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error(), "error_type": "validation_error"})
		return
	}

	sendReq := verification.SendRequest{
		ApplicationID:   req.ApplicationID,
		Email:           req.Email,
		CandidateName:   req.CandidateName,
		JobTitle:        req.JobTitle,
		CompanyName:     req.CompanyName,
		InterviewLinkID: req.InterviewLinkID,
	}

	var (
		res *verification.SendResult
		err error
	)
	if resend {
		res, err = h.verificationService.ResendCode(c.Request.Context(), sendReq)
	} else {
		res, err = h.verificationService.SendVerification(c.Request.Context(), sendReq)
	}
	if err != nil {
		h.handleVerificationError(c, err)
		return
	}

	resp := dto.SendVerificationResponse{ApplicationID: res.ApplicationID, ExpiresAt: res.ExpiresAt}
	if res.DispatchErr != nil {
		resp.Warning = "verification email could not be delivered, try resending"
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyEmail проверяет код и отмечает заявку подтвержденной
func (h *VerificationHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error(), "error_type": "validation_error"})
		return
	}

	res, err := h.verificationService.VerifyEmail(req.ApplicationID, req.Email, req.Code)
	if err != nil {
		if errors.Is(err, verification.ErrAlreadyVerified) {
			// Повторно сохраняем флаг: прошлая запись в БД могла не пройти
			status := h.verificationService.GetStatus(req.ApplicationID, req.Email)
			if status.VerifiedAt != nil && !h.persistVerified(c, req.ApplicationID, *status.VerifiedAt) {
				return
			}
		}
		h.handleVerificationError(c, err)
		return
	}

	if !h.persistVerified(c, req.ApplicationID, res.VerifiedAt) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":       true,
		"candidate_data": res.CandidateData,
	})
}

// persistVerified записывает email_verified в заявку и сбрасывает кеш.
// При ошибке отвечает 500 и возвращает false.
func (h *VerificationHandler) persistVerified(c *gin.Context, applicationID string, verifiedAt time.Time) bool {
	if h.applications == nil {
		return true
	}
	if err := h.applications.MarkEmailVerified(applicationID, verifiedAt); err != nil {
		log.Printf("[VerificationHandler] Ошибка сохранения email_verified для заявки %s: %v", applicationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save verification", "error_type": "internal_server_error"})
		return false
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(c.Request.Context(), applicationID)
	}
	return true
}

// GetStatus возвращает состояние сессии подтверждения
func (h *VerificationHandler) GetStatus(c *gin.Context) {
	var q dto.VerificationStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error(), "error_type": "validation_error"})
		return
	}
	c.JSON(http.StatusOK, h.verificationService.GetStatus(q.ApplicationID, q.Email))
}

// ClearSession удаляет сессию подтверждения
func (h *VerificationHandler) ClearSession(c *gin.Context) {
	var q dto.VerificationStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error(), "error_type": "validation_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": h.verificationService.ClearVerification(q.ApplicationID, q.Email)})
}

// GetStats возвращает агрегированную статистику
func (h *VerificationHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.verificationService.GetStats())
}

// IssuePrivateLink выпускает одноразовую ссылку на приватное интервью
func (h *VerificationHandler) IssuePrivateLink(c *gin.Context) {
	var req dto.IssuePrivateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error(), "error_type": "validation_error"})
		return
	}

	res, err := h.verificationService.IssuePrivateLink(c.Request.Context(), verification.IssueRequest{
		ApplicationID: req.ApplicationID,
		CandidateID:   req.CandidateID,
		Email:         req.Email,
		JobID:         req.JobID,
		JobTitle:      req.JobTitle,
		CompanyName:   req.CompanyName,
		PublicLinkID:  req.PublicLinkID,
	})
	if err != nil {
		h.handleVerificationError(c, err)
		return
	}

	resp := dto.IssuePrivateLinkResponse{Token: res.Token, URL: res.URL, ExpiresAt: res.ExpiresAt}
	if res.DispatchErr != nil {
		resp.Warning = "interview link email could not be delivered"
	}
	c.JSON(http.StatusCreated, resp)
}

// ValidatePrivateToken проверяет токен без его использования
func (h *VerificationHandler) ValidatePrivateToken(c *gin.Context) {
	res, err := h.verificationService.ValidatePrivateToken(c.GetString(privateTokenKey))
	if err != nil {
		h.handleVerificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "metadata": res.Metadata})
}

// UsePrivateToken использует токен (однократно)
func (h *VerificationHandler) UsePrivateToken(c *gin.Context) {
	res, err := h.verificationService.UsePrivateToken(c.GetString(privateTokenKey))
	if err != nil {
		h.handleVerificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_granted": true, "metadata": res.Metadata, "used_at": res.UsedAt})
}

// handleVerificationError переводит ошибки сервиса в HTTP-ответы
func (h *VerificationHandler) handleVerificationError(c *gin.Context, err error) {
	f, ok := verification.AsFailure(err)
	if !ok {
		log.Printf("[VerificationHandler] Internal error: %v", err)
		if errors.Is(err, apperrors.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable", "error_type": "service_unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
		return
	}

	body := gin.H{"error": f.Message, "error_type": string(f.Code)}
	switch f.Code {
	case verification.CodeCodeMismatch:
		body["remaining_attempts"] = f.RemainingAttempts
	case verification.CodeResendTooSoon:
		retryAfter := f.RetryAfterSeconds()
		body["retry_after"] = retryAfter
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	c.JSON(failureStatus(f.Code), body)
}

func failureStatus(code verification.FailureCode) int {
	switch code {
	case verification.CodeApplicationMismatch:
		return http.StatusForbidden
	case verification.CodeSessionNotFound, verification.CodeTokenNotFound:
		return http.StatusNotFound
	case verification.CodeCodeExpired, verification.CodeTokenExpired:
		return http.StatusGone
	case verification.CodeAlreadyVerified, verification.CodeTokenAlreadyUsed:
		return http.StatusConflict
	case verification.CodeCodeMismatch:
		return http.StatusUnprocessableEntity
	case verification.CodeAttemptsExceeded, verification.CodeResendTooSoon:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// ExportStats выгружает снимок статистики в Excel
func (h *VerificationHandler) ExportStats(c *gin.Context) {
	stats := h.verificationService.GetStats()
	filename := fmt.Sprintf("verification_stats_%s", stats.GeneratedAt.UTC().Format("20060102_150405"))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Статистика"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[VerificationHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file", "error_type": "internal_server_error"})
		return
	}

	rows := [][]interface{}{
		{"Раздел", "Показатель", "Значение"},
		{"Подтверждение email", "Всего сессий", stats.Verification.Total},
		{"Подтверждение email", "Ожидают кода", stats.Verification.Pending},
		{"Подтверждение email", "Подтверждено", stats.Verification.Verified},
		{"Подтверждение email", "Истекло", stats.Verification.Expired},
		{"Подтверждение email", "Заблокировано", stats.Verification.Locked},
		{"Подтверждение email", "Доля подтвержденных", stats.Verification.VerificationRate},
		{"Приватные ссылки", "Всего токенов", stats.Tokens.Total},
		{"Приватные ссылки", "Активные", stats.Tokens.Active},
		{"Приватные ссылки", "Использованные", stats.Tokens.Used},
		{"Приватные ссылки", "Истекшие", stats.Tokens.Expired},
		{"Приватные ссылки", "Доля использованных", stats.Tokens.UsageRate},
		{"", "Сформировано", stats.GeneratedAt.UTC().Format(time.RFC3339)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[VerificationHandler] Ошибка записи строки %d: %v", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[VerificationHandler] Ошибка при Flush: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file", "error_type": "internal_server_error"})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[VerificationHandler] Ошибка записи Excel в response: %v", err)
	}
}
