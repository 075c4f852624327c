package job

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *fakeRepo, *fakePublisher) {
	t.Helper()
	repo := newFakeRepo()
	pub := &fakePublisher{}
	return NewHandler(NewService(repo, testRegistry(), pub)), repo, pub
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Submit(t *testing.T) {
	h, repo, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"type":"echo","params":{"msg":"hi"}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["job_id"])
	assert.Len(t, repo.jobs, 1)
}

func TestHandler_Submit_UnknownType(t *testing.T) {
	h, repo, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"type":"ghost","params":{}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "UNKNOWN_JOB_TYPE", errObj["code"])
	assert.Empty(t, repo.jobs)
}

func TestHandler_Submit_MissingParam(t *testing.T) {
	h, repo, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"type":"echo","params":{}}`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_PARAMS", errObj["code"])
	assert.Contains(t, errObj["message"], "msg")
	assert.Empty(t, repo.jobs)
}

func TestHandler_Submit_BadJSON(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Get(t *testing.T) {
	h, repo, _ := newTestHandler(t)
	ctx := context.Background()

	j := &Job{Type: "echo", Params: json.RawMessage(`{"msg":"hi"}`)}
	require.NoError(t, repo.Create(ctx, j))
	_, err := repo.MarkRunning(ctx, j.ID, "d1")
	require.NoError(t, err)
	require.NoError(t, repo.MarkFinished(ctx, j.ID, json.RawMessage(`{"echoed":"hi"}`)))

	req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)
	req.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "FINISHED", data["state"])
	assert.Equal(t, map[string]any{"echoed": "hi"}, data["result"])
	_, hasErr := data["error_message"]
	assert.False(t, hasErr)
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/42", nil)
	req.SetPathValue("id", "42")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestHandler_Get_BadID(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_List(t *testing.T) {
	h, repo, _ := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &Job{Type: "echo"}))
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs?page=1&page_size=2", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, float64(2), meta["page_size"])
	assert.Equal(t, float64(2), meta["total_pages"])
}

func TestHandler_ListTypes(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/job-types", nil)
	rec := httptest.NewRecorder()
	h.ListTypes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "echo", first["name"])
	// Handler references never appear in the payload.
	_, hasHandler := first["handler"]
	assert.False(t, hasHandler)
}
