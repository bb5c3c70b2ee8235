package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hiring-api/internal/service/verification"
)

type fakeResendSender struct {
	errs     []error
	calls    int
	requests []*resend.SendEmailRequest
	options  []*resend.SendEmailOptions
}

func (f *fakeResendSender) SendWithOptions(ctx context.Context, params *resend.SendEmailRequest, options *resend.SendEmailOptions) (*resend.SendEmailResponse, error) {
	f.calls++
	f.requests = append(f.requests, params)
	f.options = append(f.options, options)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func newTestResendService(sender *fakeResendSender) *ResendEmailService {
	return &ResendEmailService{from: "Hiring <no-reply@example.com>", emails: sender, retries: 3}
}

func TestNewResendEmailService_Validation(t *testing.T) {
	_, err := NewResendEmailService("", "from@example.com")
	assert.Error(t, err)
	_, err = NewResendEmailService("re_key", "")
	assert.Error(t, err)
}

func TestResendEmailService_SendVerificationCode(t *testing.T) {
	sender := &fakeResendSender{}
	svc := newTestResendService(sender)

	err := svc.SendVerificationCode(context.Background(), verification.CodeEmail{
		To:             "candidate@example.com",
		Code:           "482913",
		CandidateName:  "Ada",
		JobTitle:       "Backend Engineer",
		ExpiresIn:      10 * time.Minute,
		IdempotencyKey: " email-verify:app-1:1 ",
	})
	require.NoError(t, err)
	require.Equal(t, 1, sender.calls)

	req := sender.requests[0]
	assert.Equal(t, []string{"candidate@example.com"}, req.To)
	assert.Equal(t, "Verify your email for Backend Engineer", req.Subject)
	assert.Contains(t, req.Text, "482913")
	assert.Contains(t, req.Text, "10 minutes")
	assert.Equal(t, "email-verify:app-1:1", sender.options[0].IdempotencyKey)
}

func TestResendEmailService_SendPrivateInterviewLink_EscapesHTML(t *testing.T) {
	sender := &fakeResendSender{}
	svc := newTestResendService(sender)

	err := svc.SendPrivateInterviewLink(context.Background(), verification.PrivateLinkEmail{
		To:            "candidate@example.com",
		URL:           "https://jobs.example.com/interview/private/abc",
		CandidateName: "<script>",
		JobTitle:      "SRE",
		CompanyName:   "Acme",
		ExpiresAt:     time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	req := sender.requests[0]
	assert.NotContains(t, req.Html, "<script>")
	assert.Contains(t, req.Html, "SRE at Acme")
	assert.Contains(t, req.Text, "https://jobs.example.com/interview/private/abc")
}

func TestResendEmailService_RetriesTransientErrors(t *testing.T) {
	sender := &fakeResendSender{errs: []error{errors.New("i/o timeout"), nil}}
	svc := newTestResendService(sender)

	err := svc.SendVerificationCode(context.Background(), verification.CodeEmail{To: "a@example.com", Code: "1"})
	require.NoError(t, err)
	assert.Equal(t, 2, sender.calls)
}

func TestResendEmailService_NoWaitAfterLastAttempt(t *testing.T) {
	sender := &fakeResendSender{errs: []error{&resend.RateLimitError{RetryAfter: "30"}}}
	svc := &ResendEmailService{from: "Hiring <no-reply@example.com>", emails: sender, retries: 1}

	started := time.Now()
	err := svc.SendVerificationCode(context.Background(), verification.CodeEmail{To: "a@example.com", Code: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after retries")
	assert.Equal(t, 1, sender.calls)
	assert.Less(t, time.Since(started), 5*time.Second, "Не должно быть ожидания после последней попытки")
}

func TestResendEmailService_PermanentErrorNotRetried(t *testing.T) {
	sender := &fakeResendSender{errs: []error{errors.New("invalid from address")}}
	svc := newTestResendService(sender)

	err := svc.SendVerificationCode(context.Background(), verification.CodeEmail{To: "a@example.com", Code: "1"})
	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)
}

func TestResendEmailService_RequiresRecipient(t *testing.T) {
	svc := newTestResendService(&fakeResendSender{})
	assert.Error(t, svc.SendVerificationCode(context.Background(), verification.CodeEmail{Code: "1"}))
	assert.Error(t, svc.SendPrivateInterviewLink(context.Background(), verification.PrivateLinkEmail{To: "a@example.com"}))
}

func TestResendRetryDelay_RateLimit(t *testing.T) {
	wait, ok := resendRetryDelay(&resend.RateLimitError{RetryAfter: "120"}, 0)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	_, ok = resendRetryDelay(errors.New("bad request"), 0)
	assert.False(t, ok)
}
