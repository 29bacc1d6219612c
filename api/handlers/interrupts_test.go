package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/lumakit/relay/interrupt"
)

func setupInterruptMux(t *testing.T, limiter *rate.Limiter) (*http.ServeMux, *interrupt.Manager) {
	t.Helper()
	manager := interrupt.NewManager(interrupt.NewMemoryStore(), nil, nil)
	mux := http.NewServeMux()
	NewInterruptHandler(manager, nil, limiter).Register(mux)
	return mux, manager
}

func storePending(t *testing.T, manager *interrupt.Manager, executionID, userID string) {
	t.Helper()
	_, err := manager.StoreInterrupt(context.Background(), interrupt.StoreOptions{
		ExecutionID: executionID,
		ThreadID:    "th-1",
		UserID:      userID,
		Payload:     interrupt.ActionPayload{Action: "send_message", AllowAccept: true, AllowIgnore: true},
	})
	require.NoError(t, err)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetInterruptFound(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-1")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interrupts/exec-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"execution_id":"exec-1"`)
	assert.Contains(t, string(data), `"pending"`)
}

func TestGetInterruptNotFound(t *testing.T) {
	mux, _ := setupInterruptMux(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interrupts/nonexistent", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestRespondApproves(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-1")

	body := `{"kind":"accept"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := manager.GetInterrupt(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, interrupt.StatusApproved, updated.Status)
}

func TestRespondConflictOnSecondDecision(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-1")

	first := httptest.NewRecorder()
	mux.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(`{"kind":"accept"}`)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	mux.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(`{"kind":"ignore"}`)))
	require.Equal(t, http.StatusConflict, second.Code)

	resp := decodeEnvelope(t, second)
	assert.Equal(t, "conflict", resp.Error.Code)
}

func TestRespondBadKind(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-1")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(`{"kind":"shrug"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondMalformedBody(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-1")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(`{kind}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondNotFound(t *testing.T) {
	mux, _ := setupInterruptMux(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interrupts/nonexistent/response", strings.NewReader(`{"kind":"accept"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondRateLimited(t *testing.T) {
	mux, manager := setupInterruptMux(t, rate.NewLimiter(rate.Limit(0.001), 1))
	storePending(t, manager, "exec-1", "user-1")
	storePending(t, manager, "exec-2", "user-1")

	first := httptest.NewRecorder()
	mux.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/interrupts/exec-1/response", strings.NewReader(`{"kind":"accept"}`)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	mux.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/interrupts/exec-2/response", strings.NewReader(`{"kind":"accept"}`)))
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	resp := decodeEnvelope(t, second)
	assert.Equal(t, "rate_limited", resp.Error.Code)

	// The throttled decision was not applied.
	rec, err := manager.GetInterrupt(context.Background(), "exec-2")
	require.NoError(t, err)
	assert.Equal(t, interrupt.StatusPending, rec.Status)
}

func TestListPendingFiltersUser(t *testing.T) {
	mux, manager := setupInterruptMux(t, nil)
	storePending(t, manager, "exec-1", "user-a")
	storePending(t, manager, "exec-2", "user-b")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interrupts?user_id=user-a", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestListPendingEmpty(t *testing.T) {
	mux, _ := setupInterruptMux(t, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interrupts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
