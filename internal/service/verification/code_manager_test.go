package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCodeManager_SendAndVerify(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{}
	m := newTestCodeManager(t, clock, d)

	res, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	assert.Equal(t, "app-1", res.ApplicationID)
	assert.Equal(t, clock.Now().Add(DefaultCodeTTL), res.ExpiresAt)
	assert.NoError(t, res.DispatchErr)

	code := d.lastCode(t)
	assert.Len(t, code, DefaultCodeLength)
	assert.Equal(t, "candidate@example.com", d.codes[0].To)

	out, err := m.Verify("app-1", "candidate@example.com", code)
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, "Ada Lovelace", out.CandidateData.CandidateName)
	assert.Equal(t, "link-42", out.CandidateData.InterviewLinkID)

	_, err = m.Verify("app-1", "candidate@example.com", code)
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	_, err = m.Verify("app-1", "candidate@example.com", "000000")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestCodeManager_Dispatch_UsesMock(t *testing.T) {
	clock := newFakeClock()
	d := new(MockDispatcher)
	d.On("SendVerificationCode", mock.Anything, mock.MatchedBy(func(msg CodeEmail) bool {
		return msg.Code == "482913" && msg.To == "candidate@example.com" && msg.ExpiresIn == DefaultCodeTTL
	})).Return(nil).Once()

	m := newTestCodeManager(t, clock, d)
	m.SetCodeGenerator(fixedCode("482913"))

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	d.AssertExpectations(t)
}

func TestCodeManager_MismatchScenario(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})
	m.SetCodeGenerator(fixedCode("482913"))

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	for _, want := range []int{4, 3, 2, 1} {
		_, err := m.Verify("app-1", testSend.Email, "111111")
		require.ErrorIs(t, err, ErrCodeMismatch)
		f, ok := AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, want, f.RemainingAttempts)
	}

	_, err = m.Verify("app-1", testSend.Email, "111111")
	assert.ErrorIs(t, err, ErrAttemptsExceeded, "last attempt used up")

	_, err = m.Verify("app-1", testSend.Email, "482913")
	assert.ErrorIs(t, err, ErrAttemptsExceeded, "correct code after lockout still fails")

	assert.Equal(t, StateLocked, m.Status("app-1", testSend.Email).State)
}

// Пятая попытка с верным кодом проходит: проверка идет по attemptsUsed < maxAttempts,
// хотя в описании сценария "пятая попытка (любой код)" дает AttemptsExceeded.
// Блокировка наступает только после пятого неверного кода.
func TestCodeManager_CorrectCodeOnLastAttempt(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})
	m.SetCodeGenerator(fixedCode("482913"))

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		_, _ = m.Verify("app-1", testSend.Email, "111111")
	}

	out, err := m.Verify("app-1", testSend.Email, "482913")
	require.NoError(t, err)
	assert.True(t, out.Verified)
}

func TestCodeManager_VerifyExpiredWithoutReap(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{}
	m := newTestCodeManager(t, clock, d)

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	code := d.lastCode(t)

	clock.Advance(DefaultCodeTTL)
	_, err = m.Verify("app-1", testSend.Email, code)
	assert.ErrorIs(t, err, ErrCodeExpired)

	assert.Equal(t, StateExpired, m.Status("app-1", testSend.Email).State)
}

func TestCodeManager_VerifyWithoutSession(t *testing.T) {
	m := newTestCodeManager(t, newFakeClock(), &recordingDispatcher{})

	_, err := m.Verify("app-1", "nobody@example.com", "123456")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCodeManager_ResendInvalidatesOldCode(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})

	m.SetCodeGenerator(fixedCode("111111"))
	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	clock.Advance(DefaultResendCooldown)
	m.SetCodeGenerator(fixedCode("222222"))
	_, err = m.Resend(context.Background(), testSend)
	require.NoError(t, err)

	_, err = m.Verify("app-1", testSend.Email, "111111")
	require.ErrorIs(t, err, ErrCodeMismatch)

	out, err := m.Verify("app-1", testSend.Email, "222222")
	require.NoError(t, err)
	assert.True(t, out.Verified)
}

func TestCodeManager_SendOverwritesPreviousSession(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})

	m.SetCodeGenerator(fixedCode("111111"))
	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	_, _ = m.Verify("app-1", testSend.Email, "999999")

	m.SetCodeGenerator(fixedCode("222222"))
	_, err = m.Send(context.Background(), testSend)
	require.NoError(t, err)

	st := m.Status("app-1", testSend.Email)
	assert.Equal(t, DefaultMaxAttempts, st.RemainingAttempts, "attempt counter is reset")

	_, err = m.Verify("app-1", testSend.Email, "111111")
	assert.ErrorIs(t, err, ErrCodeMismatch)
}

func TestCodeManager_ResendCooldown(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})

	first, err := m.Resend(context.Background(), testSend)
	require.NoError(t, err, "resend without a session behaves like send")

	clock.Advance(10 * time.Second)
	_, err = m.Resend(context.Background(), testSend)
	require.ErrorIs(t, err, ErrResendTooSoon)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, 50*time.Second, f.RetryAfter)

	clock.Advance(50 * time.Second)
	second, err := m.Resend(context.Background(), testSend)
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
}

func TestCodeManager_ResendAfterVerification(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{}
	m := newTestCodeManager(t, clock, d)
	m.SetCodeGenerator(fixedCode("482913"))

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	_, err = m.Verify("app-1", testSend.Email, "482913")
	require.NoError(t, err)

	clock.Advance(DefaultResendCooldown + time.Second)
	_, err = m.Resend(context.Background(), testSend)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, StateVerified, m.Status("app-1", testSend.Email).State)

	_, err = m.Verify("app-1", testSend.Email, "482913")
	assert.ErrorIs(t, err, ErrAlreadyVerified, "verification happens only once")

	clock.Advance(DefaultCodeTTL)
	_, err = m.Resend(context.Background(), testSend)
	assert.ErrorIs(t, err, ErrAlreadyVerified, "expired verified session is not reissued either")
	assert.Len(t, d.codes, 1)
}

func TestCodeManager_StatusRoundsCooldownUp(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	clock.Advance(DefaultResendCooldown - 400*time.Millisecond)
	st := m.Status("app-1", testSend.Email)
	assert.False(t, st.CanResend)
	assert.Equal(t, 1, st.ResendAvailableIn)

	_, err = m.Resend(context.Background(), testSend)
	require.ErrorIs(t, err, ErrResendTooSoon)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, 1, f.RetryAfterSeconds())

	clock.Advance(400 * time.Millisecond)
	assert.True(t, m.Status("app-1", testSend.Email).CanResend)
	_, err = m.Resend(context.Background(), testSend)
	assert.NoError(t, err)
}

func TestCodeManager_ConcurrentResendsWithoutSession(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{}
	m := newTestCodeManager(t, clock, d)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, tooSoon := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Resend(context.Background(), testSend)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrResendTooSoon):
				tooSoon++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, tooSoon)
	assert.Len(t, d.codes, 1)
}

func TestCodeManager_ConcurrentResendsSingleWinner(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{}
	m := newTestCodeManager(t, clock, d)

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	clock.Advance(DefaultResendCooldown)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Resend(context.Background(), testSend); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, d.codes, 2)
}

func TestCodeManager_ConcurrentMismatchesNotLost(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})
	m.SetCodeGenerator(fixedCode("482913"))
	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	const workers = 3
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Verify("app-1", testSend.Email, "000000")
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultMaxAttempts-workers, m.Status("app-1", testSend.Email).RemainingAttempts)
}

func TestCodeManager_DispatchFailureKeepsCode(t *testing.T) {
	clock := newFakeClock()
	d := &recordingDispatcher{fail: true}
	m := newTestCodeManager(t, clock, d)

	res, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)
	require.Error(t, res.DispatchErr)

	out, err := m.Verify("app-1", testSend.Email, d.lastCode(t))
	require.NoError(t, err)
	assert.True(t, out.Verified)
}

func TestCodeManager_GeneratorFailure(t *testing.T) {
	m := newTestCodeManager(t, newFakeClock(), &recordingDispatcher{})
	m.SetCodeGenerator(func() (string, error) { return "", errors.New("entropy exhausted") })

	_, err := m.Send(context.Background(), testSend)
	require.Error(t, err)
	_, isFailure := AsFailure(err)
	assert.False(t, isFailure, "internal faults are not policy failures")
	assert.Equal(t, StateNone, m.Status("app-1", testSend.Email).State)
}

func TestCodeManager_Status(t *testing.T) {
	clock := newFakeClock()
	m := newTestCodeManager(t, clock, &recordingDispatcher{})
	m.SetCodeGenerator(fixedCode("482913"))

	st := m.Status("app-1", testSend.Email)
	assert.Equal(t, StateNone, st.State)
	assert.True(t, st.CanResend)

	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	st = m.Status("app-1", testSend.Email)
	assert.Equal(t, StatePending, st.State)
	require.NotNil(t, st.ExpiresAt)
	assert.Equal(t, clock.Now().Add(DefaultCodeTTL), *st.ExpiresAt)
	assert.Equal(t, DefaultMaxAttempts, st.RemainingAttempts)
	assert.False(t, st.CanResend)
	assert.Equal(t, 60, st.ResendAvailableIn)

	_, err = m.Verify("app-1", testSend.Email, "482913")
	require.NoError(t, err)

	clock.Advance(DefaultCodeTTL + time.Minute)
	st = m.Status("app-1", testSend.Email)
	assert.Equal(t, StateVerified, st.State, "verified session stays visible inside grace window")
	assert.NotNil(t, st.VerifiedAt)
}

func TestCodeManager_Clear(t *testing.T) {
	m := newTestCodeManager(t, newFakeClock(), &recordingDispatcher{})
	_, err := m.Send(context.Background(), testSend)
	require.NoError(t, err)

	assert.True(t, m.Clear("app-1", "CANDIDATE@example.com "))
	assert.Equal(t, StateNone, m.Status("app-1", testSend.Email).State)
}
