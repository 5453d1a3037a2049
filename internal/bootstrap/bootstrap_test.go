package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner"
	"github.com/hupe1980/messplanner/config"
	"github.com/hupe1980/messplanner/planner"
)

func mockConfig(t *testing.T) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())

	v := config.New()
	v.Set("model.provider", "mock")
	v.Set("search.enabled", false)

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func TestBuild_MockCoordinator(t *testing.T) {
	cfg := mockConfig(t)

	stack, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	assert.Equal(t, planner.ModeCoordinator, stack.Mode)
	assert.Equal(t, "mock", stack.Model.Info().Provider)

	res, err := stack.App.Plan(context.Background(), messplanner.PlanRequest{})
	require.NoError(t, err)
	assert.Equal(t, MockPlan, res.Plan)
	assert.False(t, res.Pending)
	assert.Equal(t, "user1", res.Key.UserID)
	assert.Equal(t, "session1", res.Key.SessionID)
}

func TestBuild_SequentialWithRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := mockConfig(t)
	cfg.Planner.Mode = "sequential"
	cfg.Session.Backend = "redis"
	cfg.Session.RedisURL = "redis://" + mr.Addr() + "/0"

	stack, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })

	res, err := stack.App.Plan(context.Background(), messplanner.PlanRequest{
		Message:   "4 log, ₹400 per day, no paneer",
		UserID:    "asha",
		SessionID: "hostel",
	})
	require.NoError(t, err)
	assert.Equal(t, MockPlan, res.Plan)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Contains(t, keys[0], "messplanner:session")
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Session.Backend = "redis"
	cfg.Session.RedisURL = "redis://127.0.0.1:1/0"

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "redis session store")
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: "openai", Name: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)

	m, err = NewModel(config.ModelConfig{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	m, err = NewModel(config.ModelConfig{Provider: "anthropic", Name: "claude-3-5-haiku-latest", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", m.Info().Name)

	_, err = NewModel(config.ModelConfig{Provider: "gemini"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
