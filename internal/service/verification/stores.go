package verification

import (
	"time"

	"github.com/yourusername/hiring-api/internal/store"
)

// NewSessionStore создает хранилище сессий. Истекшая сессия остается видимой
// для Status в течение policy.StatusGrace.
func NewSessionStore(policy Policy, now func() time.Time) *store.ExpiringStore[Session] {
	policy = policy.WithDefaults()
	return store.New[Session](store.Options{
		Grace: policy.StatusGrace,
		Now:   now,
		Name:  "verification_sessions",
	})
}

// NewTokenStore создает хранилище токенов. Неиспользованные токены удаляются по истечении,
// использованные Use хранит еще policy.UsedTokenRetention.
func NewTokenStore(now func() time.Time) *store.ExpiringStore[PrivateToken] {
	return store.New[PrivateToken](store.Options{
		Now:  now,
		Name: "private_tokens",
	})
}
