package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/yourusername/hiring-api/internal/service/verification"
)

// EmailService отправляет транзакционные письма кандидатам
type EmailService interface {
	verification.Dispatcher
}

// NoopEmailService используется, когда почтовый провайдер не настроен
type NoopEmailService struct{}

func (s *NoopEmailService) SendVerificationCode(ctx context.Context, msg verification.CodeEmail) error {
	log.Printf("[EmailService] noop send verification code to=%s", msg.To)
	return nil
}

func (s *NoopEmailService) SendPrivateInterviewLink(ctx context.Context, msg verification.PrivateLinkEmail) error {
	log.Printf("[EmailService] noop send private interview link to=%s", msg.To)
	return nil
}

// resendSender - часть клиента Resend, которая здесь используется
type resendSender interface {
	SendWithOptions(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) (*resend.SendEmailResponse, error)
}

// ResendEmailService отправляет письма через Resend REST API
type ResendEmailService struct {
	from    string
	emails  resendSender
	retries int
}

func NewResendEmailService(apiKey, from string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	client := resend.NewClient(apiKey)
	return &ResendEmailService{
		from:    from,
		emails:  client.Emails,
		retries: 3,
	}, nil
}

func (s *ResendEmailService) SendVerificationCode(ctx context.Context, msg verification.CodeEmail) error {
	if msg.To == "" || msg.Code == "" {
		return fmt.Errorf("recipient and code are required")
	}

	minutes := int(msg.ExpiresIn.Minutes())
	subject := "Verify your email"
	if msg.JobTitle != "" {
		subject = fmt.Sprintf("Verify your email for %s", msg.JobTitle)
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: subject,
		Text: fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in %d minutes.",
			greetingName(msg.CandidateName), msg.Code, minutes),
		Html: fmt.Sprintf("<p>Hi %s,</p><p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
			html.EscapeString(greetingName(msg.CandidateName)), msg.Code, minutes),
	}
	return s.send(ctx, params, msg.IdempotencyKey)
}

func (s *ResendEmailService) SendPrivateInterviewLink(ctx context.Context, msg verification.PrivateLinkEmail) error {
	if msg.To == "" || msg.URL == "" {
		return fmt.Errorf("recipient and url are required")
	}

	position := msg.JobTitle
	if msg.CompanyName != "" {
		position = fmt.Sprintf("%s at %s", msg.JobTitle, msg.CompanyName)
	}
	expires := msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: "Your private interview link",
		Text: fmt.Sprintf("Hi %s,\n\nYou have been invited to interview for %s.\nOpen your private link: %s\nThe link can be used once and expires %s.",
			greetingName(msg.CandidateName), position, msg.URL, expires),
		Html: fmt.Sprintf("<p>Hi %s,</p><p>You have been invited to interview for <strong>%s</strong>.</p><p><a href=\"%s\">Start your interview</a></p><p>The link can be used once and expires %s.</p>",
			html.EscapeString(greetingName(msg.CandidateName)), html.EscapeString(position), html.EscapeString(msg.URL), expires),
	}
	return s.send(ctx, params, msg.IdempotencyKey)
}

func (s *ResendEmailService) send(ctx context.Context, params *resend.SendEmailRequest, idempotencyKey string) error {
	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		_, err := s.emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			if attempt == s.retries-1 {
				// последняя попытка, ждать больше незачем
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return strings.TrimSpace(name)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
