package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "nsqlookupd:4161", cfg.NSQLookupd)
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.True(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableWorker)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("QUEUES", "default, heavy ,reports")
	t.Setenv("WORKER_CONCURRENCY", "16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, []string{"default", "heavy", "reports"}, cfg.QueueList())
	assert.Equal(t, 16, cfg.WorkerConcurrency)
}

func TestValidate(t *testing.T) {
	base := Config{
		DBHost:            "h",
		DBUser:            "u",
		DBName:            "d",
		Queues:            "default",
		WorkerConcurrency: 1,
	}
	assert.NoError(t, base.Validate())

	c := base
	c.DBHost = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingRequired)

	c = base
	c.Queues = " , "
	assert.ErrorIs(t, c.Validate(), ErrMissingRequired)

	c = base
	c.WorkerConcurrency = 0
	assert.Error(t, c.Validate())
}

func TestJobTopic(t *testing.T) {
	assert.Equal(t, "jobs.default", JobTopic("default"))
	assert.Equal(t, "jobs.heavy", JobTopic("heavy"))
}
