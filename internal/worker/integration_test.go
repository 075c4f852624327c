package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longrun/features/job"
	"longrun/internal/config"
	"longrun/internal/registry"
	"longrun/internal/testutils"
	"longrun/internal/worker"
)

// End to end: submit envelope through a real nsqd, consume it, verify
// the record reaches a terminal state in a real Postgres.
func TestEngine_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	reg := registry.New()
	reg.Register(registry.JobConfig{
		TypeName: "echo",
		Handler: func(ctx context.Context, jobID int64, params map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": params["msg"]}, nil
		},
	})

	rec := &job.Job{Type: "echo", Params: json.RawMessage(`{"msg":"hi"}`)}
	require.NoError(t, repo.Create(ctx, rec))

	topic := config.JobTopic("default")
	body, err := json.Marshal(job.Envelope{JobID: rec.ID, Type: "echo", SubmitRef: "ref"})
	require.NoError(t, err)
	require.NoError(t, s.NSQ.Publish(topic, body))

	consumer, err := nsq.NewConsumer(topic, config.WorkerChannel, nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(worker.NewEngine(repo, reg))
	require.NoError(t, consumer.ConnectToNSQD(s.NSQDAddr))
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		got, err := repo.Get(ctx, rec.ID)
		return err == nil && got.State == job.StateFinished
	}, 30*time.Second, 200*time.Millisecond)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echoed":"hi"}`, string(got.Result))
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, 1, got.Attempts)
}
