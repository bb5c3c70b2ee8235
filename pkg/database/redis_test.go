package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hiring-api/internal/config"
)

func TestUniversalOptions(t *testing.T) {
	t.Run("single uses first address", func(t *testing.T) {
		opts, err := universalOptions(config.RedisConfig{Addrs: []string{"a:6379", "b:6379"}, DB: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"a:6379"}, opts.Addrs)
		assert.Equal(t, 2, opts.DB)
	})

	t.Run("addr fallback", func(t *testing.T) {
		opts, err := universalOptions(config.RedisConfig{Mode: "single", Addr: "localhost:6379", MinRetryBackoff: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost:6379"}, opts.Addrs)
		assert.Equal(t, int64(10_000_000), opts.MinRetryBackoff.Nanoseconds())
	})

	t.Run("sentinel requires master", func(t *testing.T) {
		_, err := universalOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"s:26379"}})
		assert.Error(t, err)

		opts, err := universalOptions(config.RedisConfig{Mode: "sentinel", Addrs: []string{"s:26379"}, MasterName: "mymaster"})
		require.NoError(t, err)
		assert.Equal(t, "mymaster", opts.MasterName)
	})

	t.Run("cluster keeps all addresses", func(t *testing.T) {
		opts, err := universalOptions(config.RedisConfig{Mode: "cluster", Addrs: []string{"a:1", "b:1", "c:1"}})
		require.NoError(t, err)
		assert.Len(t, opts.Addrs, 3)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := universalOptions(config.RedisConfig{})
		assert.Error(t, err)
		_, err = universalOptions(config.RedisConfig{Mode: "ring", Addr: "a:1"})
		assert.Error(t, err)
	})
}
