package verification

import (
	"time"

	"github.com/yourusername/hiring-api/internal/store"
)

// VerificationStats - число сессий по состояниям
type VerificationStats struct {
	Total            int     `json:"total"`
	Pending          int     `json:"pending"`
	Verified         int     `json:"verified"`
	Expired          int     `json:"expired"`
	Locked           int     `json:"locked"`
	VerificationRate float64 `json:"verification_rate"`
}

// TokenStats - число приватных токенов по состояниям
type TokenStats struct {
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Used      int     `json:"used"`
	Expired   int     `json:"expired"`
	UsageRate float64 `json:"usage_rate"`
}

// Stats - срез по обоим хранилищам на момент вызова
type Stats struct {
	Verification VerificationStats `json:"verification"`
	Tokens       TokenStats        `json:"tokens"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// StatsAggregator считает статистику по запросу, собственных счетчиков не хранит
type StatsAggregator struct {
	sessions *store.ExpiringStore[Session]
	tokens   *store.ExpiringStore[PrivateToken]
}

func NewStatsAggregator(codes *CodeManager, tokens *TokenManager) *StatsAggregator {
	return &StatsAggregator{sessions: codes.sessions, tokens: tokens.tokens}
}

// Snapshot обходит оба хранилища без ввода-вывода
func (a *StatsAggregator) Snapshot() Stats {
	now := a.sessions.Now()
	out := Stats{GeneratedAt: now}

	a.sessions.Range(func(e store.Entry[Session]) bool {
		v := &out.Verification
		v.Total++
		switch {
		case e.Value.Verified:
			v.Verified++
		case !e.Live(now):
			v.Expired++
		case e.Value.AttemptsUsed >= e.Value.MaxAttempts:
			v.Locked++
		default:
			v.Pending++
		}
		return true
	})

	a.tokens.Range(func(e store.Entry[PrivateToken]) bool {
		t := &out.Tokens
		t.Total++
		switch {
		case e.Value.Used:
			t.Used++
		case !e.Live(now):
			t.Expired++
		default:
			t.Active++
		}
		return true
	})

	out.Verification.VerificationRate = ratio(out.Verification.Verified, out.Verification.Total)
	out.Tokens.UsageRate = ratio(out.Tokens.Used, out.Tokens.Total)
	return out
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
