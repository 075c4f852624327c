package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longrun/features/job"
)

type fakeJobRepo struct {
	states  map[job.State]int
	types   map[string]int
	orphans int
	err     error
}

func (f *fakeJobRepo) CountByState(ctx context.Context) (map[job.State]int, error) {
	return f.states, f.err
}

func (f *fakeJobRepo) CountByType(ctx context.Context) (map[string]int, error) {
	return f.types, f.err
}

func (f *fakeJobRepo) CountOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	return f.orphans, f.err
}

func TestGetStats(t *testing.T) {
	repo := &fakeJobRepo{
		states:  map[job.State]int{job.StateFinished: 10, job.StateFailed: 2, job.StatePending: 1},
		types:   map[string]int{"data_analysis": 8, "file_processing": 5},
		orphans: 1,
	}
	h := NewHandler(repo)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10, body.Data.States[job.StateFinished])
	assert.Equal(t, 8, body.Data.Types["data_analysis"])
	assert.Equal(t, 1, body.Data.Orphaned)
}

func TestGetStats_RepoError(t *testing.T) {
	h := NewHandler(&fakeJobRepo{err: errors.New("db down")})

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
}
