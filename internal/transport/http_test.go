package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gateway-fm/transactioneer/internal/queue"
	"github.com/gateway-fm/transactioneer/internal/storage"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

func TestValidateWorkItem(t *testing.T) {
	tests := []struct {
		name    string
		item    ptypes.WorkItem
		wantErr string // Empty string = no error expected
	}{
		{
			name:    "empty kind defaults to contract call",
			item:    ptypes.WorkItem{Args: []any{"a", "b"}},
			wantErr: "",
		},
		{
			name:    "explicit contract call",
			item:    ptypes.WorkItem{Kind: ptypes.PayloadKindCall, Args: []any{"a"}},
			wantErr: "",
		},
		{
			name: "valid transfer",
			item: ptypes.WorkItem{
				Kind:  ptypes.PayloadKindTransfer,
				To:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				Value: "1000",
			},
			wantErr: "",
		},
		{
			name:    "transfer without recipient",
			item:    ptypes.WorkItem{Kind: ptypes.PayloadKindTransfer, Value: "1"},
			wantErr: "requires a 'to' address",
		},
		{
			name: "transfer value too long",
			item: ptypes.WorkItem{
				Kind:  ptypes.PayloadKindTransfer,
				To:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				Value: strings.Repeat("9", maxValueLen+1),
			},
			wantErr: "value too long",
		},
		{
			name:    "unknown kind",
			item:    ptypes.WorkItem{Kind: "deploy"},
			wantErr: "invalid kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWorkItem(&tt.item)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateWorkItem() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("validateWorkItem() expected error containing %q, got nil", tt.wantErr)
				} else if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("validateWorkItem() error = %v, want containing %q", err, tt.wantErr)
				}
			}
		})
	}
}

// mockEngine implements EngineAPI with scripted behavior.
type mockEngine struct {
	enqueueErr error
	acceptUpTo int // EnqueueBatch accepts at most this many; 0 = all
	depth      int
	stats      ptypes.Stats
	stopped    bool
	enqueued   []ptypes.WorkItem
}

var _ EngineAPI = (*mockEngine)(nil)

func (m *mockEngine) Enqueue(item ptypes.WorkItem) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, item)
	return nil
}

func (m *mockEngine) EnqueueBatch(items []ptypes.WorkItem) (int, error) {
	if m.acceptUpTo > 0 && len(items) > m.acceptUpTo {
		m.enqueued = append(m.enqueued, items[:m.acceptUpTo]...)
		return m.acceptUpTo, queue.ErrQueueFull
	}
	if m.enqueueErr != nil {
		return 0, m.enqueueErr
	}
	m.enqueued = append(m.enqueued, items...)
	return len(items), nil
}

func (m *mockEngine) QueueDepth() int     { return m.depth }
func (m *mockEngine) Stats() ptypes.Stats { return m.stats }
func (m *mockEngine) Stop()               { m.stopped = true }

func newTestServer(api EngineAPI, history HistoryAPI) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(api, history, nil, logger, "*")
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	api := &mockEngine{stats: ptypes.Stats{
		State:     ptypes.EngineRunning,
		Attempted: 42,
		Succeeded: 40,
		Failed:    2,
	}}
	s := newTestServer(api, nil)

	rec := doRequest(t, s, http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats ptypes.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if stats.Attempted != 42 || stats.State != ptypes.EngineRunning {
		t.Errorf("stats = %+v, want attempted 42, state running", stats)
	}
}

func TestHandleStatus_WrongMethod(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/status", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleEnqueue(t *testing.T) {
	api := &mockEngine{depth: 1}
	s := newTestServer(api, nil)

	item := ptypes.WorkItem{Kind: ptypes.PayloadKindCall, Args: []any{"x"}}
	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue", item)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if len(api.enqueued) != 1 {
		t.Errorf("enqueued %d items, want 1", len(api.enqueued))
	}
}

func TestHandleEnqueue_InvalidItem(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue", ptypes.WorkItem{Kind: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEnqueue_QueueFull(t *testing.T) {
	s := newTestServer(&mockEngine{enqueueErr: queue.ErrQueueFull}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue", ptypes.WorkItem{})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleEnqueue_QueueClosed(t *testing.T) {
	s := newTestServer(&mockEngine{enqueueErr: queue.ErrQueueClosed}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue", ptypes.WorkItem{})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandleEnqueueBatch(t *testing.T) {
	api := &mockEngine{}
	s := newTestServer(api, nil)

	body := enqueueBatchRequest{Items: []ptypes.WorkItem{{}, {}, {}}}
	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["accepted"].(float64) != 3 {
		t.Errorf("accepted = %v, want 3", resp["accepted"])
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %v, want queued", resp["status"])
	}
}

func TestHandleEnqueueBatch_Partial(t *testing.T) {
	api := &mockEngine{acceptUpTo: 2}
	s := newTestServer(api, nil)

	body := enqueueBatchRequest{Items: []ptypes.WorkItem{{}, {}, {}, {}}}
	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "partial" {
		t.Errorf("status = %v, want partial", resp["status"])
	}
	if resp["accepted"].(float64) != 2 {
		t.Errorf("accepted = %v, want 2", resp["accepted"])
	}
}

func TestHandleEnqueueBatch_Empty(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/enqueue/batch", enqueueBatchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStop(t *testing.T) {
	api := &mockEngine{}
	s := newTestServer(api, nil)

	rec := doRequest(t, s, http.MethodPost, "/v1/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !api.stopped {
		t.Error("Stop() was not called")
	}
}

func TestHandleRuns_NoHistory(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/v1/runs", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

// mockHistory implements HistoryAPI over fixed data.
type mockHistory struct {
	runs        []ptypes.RunSummary
	submissions []ptypes.SubmissionRecord
	deleted     []int64
}

var _ HistoryAPI = (*mockHistory)(nil)

func (m *mockHistory) ListRuns(limit, offset int) (*storage.PaginatedRuns, error) {
	return &storage.PaginatedRuns{Runs: m.runs, Total: len(m.runs), Limit: limit, Offset: offset}, nil
}

func (m *mockHistory) GetRun(id int64) (*ptypes.RunSummary, error) {
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, nil
}

func (m *mockHistory) GetSubmissions(runID int64, limit, offset int) (*storage.PaginatedSubmissions, error) {
	return &storage.PaginatedSubmissions{Submissions: m.submissions, Total: len(m.submissions), Limit: limit, Offset: offset}, nil
}

func (m *mockHistory) GetSubmissionByHash(txHash string) (*ptypes.SubmissionRecord, error) {
	for i := range m.submissions {
		if m.submissions[i].TxHash == txHash {
			return &m.submissions[i], nil
		}
	}
	return nil, nil
}

func (m *mockHistory) DeleteRun(id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func TestHandleRuns(t *testing.T) {
	history := &mockHistory{runs: []ptypes.RunSummary{{ID: 1}, {ID: 2}}}
	s := newTestServer(&mockEngine{}, history)

	rec := doRequest(t, s, http.MethodGet, "/v1/runs?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp storage.PaginatedRuns
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("Total = %d, want 2", resp.Total)
	}
	if resp.Limit != 10 {
		t.Errorf("Limit = %d, want 10", resp.Limit)
	}
}

func TestHandleRunDetail(t *testing.T) {
	history := &mockHistory{runs: []ptypes.RunSummary{{ID: 7, Attempted: 100}}}
	s := newTestServer(&mockEngine{}, history)

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var run ptypes.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if run.ID != 7 || run.Attempted != 100 {
		t.Errorf("run = %+v, want ID 7, Attempted 100", run)
	}
}

func TestHandleRunDetail_NotFound(t *testing.T) {
	s := newTestServer(&mockEngine{}, &mockHistory{})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleRunDetail_BadID(t *testing.T) {
	s := newTestServer(&mockEngine{}, &mockHistory{})

	rec := doRequest(t, s, http.MethodGet, "/v1/runs/not-a-number", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRunDelete(t *testing.T) {
	history := &mockHistory{runs: []ptypes.RunSummary{{ID: 3}}}
	s := newTestServer(&mockEngine{}, history)

	rec := doRequest(t, s, http.MethodDelete, "/v1/runs/3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(history.deleted) != 1 || history.deleted[0] != 3 {
		t.Errorf("deleted = %v, want [3]", history.deleted)
	}
}

func TestHandleTxLookup(t *testing.T) {
	history := &mockHistory{submissions: []ptypes.SubmissionRecord{
		{TxHash: "0xdeadbeef", Nonce: 5, Status: ptypes.SubmitSucceeded},
	}}
	s := newTestServer(&mockEngine{}, history)

	rec := doRequest(t, s, http.MethodGet, "/v1/tx/0xdeadbeef", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var sub ptypes.SubmissionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if sub.Nonce != 5 {
		t.Errorf("Nonce = %d, want 5", sub.Nonce)
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/tx/0xmissing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown hash", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(&mockEngine{}, nil)

	rec := doRequest(t, s, http.MethodOptions, "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for preflight", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
