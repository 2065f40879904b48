package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohans/resultx/resultx"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "celery", cfg.Broker.Queue)
	assert.Equal(t, 1, cfg.Broker.Concurrency)
	assert.Equal(t, resultx.DefaultKeyPrefix, cfg.Results.KeyPrefix)
	assert.Nil(t, cfg.Results.Wait)
	assert.Equal(t, 50*time.Millisecond, cfg.Results.PollInterval)
	assert.Nil(t, cfg.Results.Cleanup)
	assert.Equal(t, 24*time.Hour, cfg.Results.Expires)
	assert.Empty(t, cfg.Ledger.Driver)
	assert.Equal(t, []string{"TimeLimitExceeded", "SoftTimeLimitExceeded"}, cfg.Classifier.TimeLimitTypes)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestParse_FromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", " redis:6380 ")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("BROKER_CONCURRENCY", "0")
	t.Setenv("RESULT_WAIT", "3s")
	t.Setenv("RESULT_CLEANUP", "false")
	t.Setenv("RESULT_KEY_PREFIX", "app:")
	t.Setenv("LEDGER_DRIVER", " SQLite ")
	t.Setenv("CLASSIFIER_MARKERS", "BusinessRuleViolation:expected,panicked at:unexpected")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Broker.Concurrency)
	require.NotNil(t, cfg.Results.Wait)
	assert.Equal(t, 3*time.Second, *cfg.Results.Wait)
	require.NotNil(t, cfg.Results.Cleanup)
	assert.False(t, *cfg.Results.Cleanup)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, map[string]string{
		"BusinessRuleViolation": "expected",
		"panicked at":           "unexpected",
	}, cfg.Classifier.Markers)

	sc := cfg.StoreConfig()
	assert.Equal(t, "redis:6380", sc.Addr)
	assert.Equal(t, 2, sc.DB)
	assert.Equal(t, "app:", sc.KeyPrefix)
}

func TestParse_NonPositiveWaitIsUnset(t *testing.T) {
	t.Setenv("RESULT_WAIT", "0s")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Nil(t, cfg.Results.Wait)
}

func TestParse_InvalidDuration(t *testing.T) {
	t.Setenv("RESULT_WAIT", "soon")
	_, err := Parse()
	assert.Error(t, err)
}

func TestSlogLevel_FallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "loud"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "warn"}.SlogLevel())
}

func TestRedisConfig_AsynqOpt(t *testing.T) {
	opt, err := RedisConfig{Addr: "localhost:6379", DB: 3}.AsynqOpt()
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "localhost:6379", DB: 3}, opt)

	opt, err = RedisConfig{Addr: "redis://:secret@cache:6380/1"}.AsynqOpt()
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "cache:6380", client.Addr)
	assert.Equal(t, 1, client.DB)
	assert.Equal(t, "secret", client.Password)
}

func TestClassifierConfig_Classifier(t *testing.T) {
	c, err := ClassifierConfig{
		Markers:        map[string]string{"BusinessRuleViolation": "expected"},
		TimeLimitTypes: []string{"Timeout"},
	}.Classifier()
	require.NoError(t, err)

	rec := &resultx.FailureRecord{
		Status:    resultx.StatusFailure,
		Exception: resultx.ExceptionInfo{Type: "Timeout", Module: "worker"},
	}
	got := c.Classify(rec)
	assert.Equal(t, resultx.KindOther, got.Kind)
	assert.True(t, got.TimeLimit())

	rec.Exception.Type = "Exception"
	rec.Traceback = "raise BusinessRuleViolation()"
	assert.Equal(t, resultx.KindExpected, c.Classify(rec).Kind)

	native := &resultx.FailureRecord{
		Status:    resultx.StatusFailure,
		Exception: resultx.ExceptionInfo{Type: resultx.ExcTypeUnexpected, Module: resultx.NativeModule},
	}
	assert.Equal(t, resultx.KindUnexpected, c.Classify(native).Kind)

	_, err = ClassifierConfig{Markers: map[string]string{"x": "fatal"}}.Classifier()
	assert.Error(t, err)
}
