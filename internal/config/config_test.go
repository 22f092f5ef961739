package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TraversalDefaultDepth)
	assert.Equal(t, 10, cfg.TraversalMaxDepth)
	assert.Equal(t, 5000, cfg.TraversalNodeLimit)
	assert.Equal(t, 10, cfg.RecallMaxDepth)
	assert.Equal(t, 3, cfg.ConflictRetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.LotLookupCacheTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRAVERSAL_NODE_LIMIT", "25")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.TraversalNodeLimit)
	assert.True(t, cfg.IsProduction())
}

func TestNormalize_ClampsDepths(t *testing.T) {
	cfg := &Config{TraversalMaxDepth: 50, TraversalDefaultDepth: 20, RecallMaxDepth: 30}
	cfg.normalize()

	assert.Equal(t, 10, cfg.TraversalMaxDepth)
	assert.Equal(t, 5, cfg.TraversalDefaultDepth)
	assert.Equal(t, 10, cfg.RecallMaxDepth)
	assert.Equal(t, 5000, cfg.TraversalNodeLimit)
	assert.Equal(t, 1, cfg.ConflictRetryAttempts)
}
