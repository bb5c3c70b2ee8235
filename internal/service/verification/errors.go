package verification

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// FailureCode - стабильный машиночитаемый код ошибки политики
type FailureCode string

const (
	CodeApplicationMismatch FailureCode = "application_mismatch"
	CodeSessionNotFound     FailureCode = "verification_not_found"
	CodeCodeExpired         FailureCode = "verification_expired"
	CodeAttemptsExceeded    FailureCode = "verification_attempts_exceeded"
	CodeCodeMismatch        FailureCode = "invalid_verification_code"
	CodeAlreadyVerified     FailureCode = "already_verified"
	CodeResendTooSoon       FailureCode = "verification_resend_cooldown"
	CodeTokenNotFound       FailureCode = "token_not_found"
	CodeTokenExpired        FailureCode = "token_expired"
	CodeTokenAlreadyUsed    FailureCode = "token_already_used"
)

// Failure - ожидаемый исход, который вызывающий может обработать. Возвращается
// как error и сравнивается через errors.Is с переменными ниже (только по Code).
type Failure struct {
	Code              FailureCode
	Message           string
	RemainingAttempts int           // только CodeMismatch
	RetryAfter        time.Duration // только ResendTooSoon
}

func (f *Failure) Error() string {
	return string(f.Code) + ": " + f.Message
}

// Is совпадает с любым Failure с тем же Code
func (f *Failure) Is(target error) bool {
	var t *Failure
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == f.Code
}

var (
	ErrApplicationMismatch = &Failure{Code: CodeApplicationMismatch, Message: "application not found for this email"}
	ErrSessionNotFound     = &Failure{Code: CodeSessionNotFound, Message: "no verification code was requested"}
	ErrCodeExpired         = &Failure{Code: CodeCodeExpired, Message: "verification code has expired"}
	ErrAttemptsExceeded    = &Failure{Code: CodeAttemptsExceeded, Message: "too many invalid attempts, request a new code"}
	ErrCodeMismatch        = &Failure{Code: CodeCodeMismatch, Message: "invalid verification code"}
	ErrAlreadyVerified     = &Failure{Code: CodeAlreadyVerified, Message: "email is already verified"}
	ErrResendTooSoon       = &Failure{Code: CodeResendTooSoon, Message: "please wait before requesting a new code"}
	ErrTokenNotFound       = &Failure{Code: CodeTokenNotFound, Message: "interview link not found"}
	ErrTokenExpired        = &Failure{Code: CodeTokenExpired, Message: "interview link has expired"}
	ErrTokenAlreadyUsed    = &Failure{Code: CodeTokenAlreadyUsed, Message: "interview link has already been used"}
)

func codeMismatch(remaining int) *Failure {
	return &Failure{
		Code:              CodeCodeMismatch,
		Message:           fmt.Sprintf("invalid verification code, %d attempts remaining", remaining),
		RemainingAttempts: remaining,
	}
}

func resendTooSoon(retryAfter time.Duration) *Failure {
	f := &Failure{Code: CodeResendTooSoon, RetryAfter: retryAfter}
	f.Message = fmt.Sprintf("please wait %d seconds before requesting a new code", f.RetryAfterSeconds())
	return f
}

// RetryAfterSeconds округляет RetryAfter вверх до целых секунд, не меньше 1
func (f *Failure) RetryAfterSeconds() int {
	secs := ceilSeconds(f.RetryAfter)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// AsFailure извлекает *Failure из err
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
