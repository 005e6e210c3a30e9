package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

func newAPIStub(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ptypes.Stats{
			State:      ptypes.EngineRunning,
			Attempted:  1200,
			Succeeded:  1180,
			Failed:     20,
			QueueDepth: 42,
			Rate:       48.5,
		})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"ready": false,
			"checks": []map[string]any{
				{"url": "http://node-a:8545", "status": "ok", "latency_ms": 3},
				{"url": "http://node-b:8545", "status": "failed", "error": "connection refused"},
			},
		})
	})

	mux.HandleFunc("POST /v1/enqueue/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Items []ptypes.WorkItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(EnqueueResult{
			Status:     "queued",
			Accepted:   len(req.Items),
			QueueDepth: len(req.Items),
		})
	})

	mux.HandleFunc("GET /v1/tx/", func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/v1/tx/")
		if hash != "0xabc" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(ptypes.SubmissionRecord{
			RunID:        7,
			AccountIndex: 3,
			Nonce:        101,
			TxHash:       hash,
			Status:       ptypes.SubmitSucceeded,
			Attempts:     2,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL)
}

func TestClientStatus(t *testing.T) {
	_, client := newAPIStub(t)

	stats, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if stats.State != ptypes.EngineRunning {
		t.Errorf("State = %q, want %q", stats.State, ptypes.EngineRunning)
	}
	if stats.Attempted != 1200 || stats.Succeeded != 1180 {
		t.Errorf("counters = %d/%d, want 1200/1180", stats.Attempted, stats.Succeeded)
	}
}

func TestClientReadyDecodesNotReadyBody(t *testing.T) {
	// A 503 from /ready still carries per-endpoint checks; the client must
	// surface them rather than returning a bare HTTP error.
	_, client := newAPIStub(t)

	report, err := client.Ready()
	if err != nil {
		t.Fatalf("Ready() error: %v", err)
	}
	if report.Ready {
		t.Error("Ready = true, want false")
	}
	if len(report.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(report.Checks))
	}
	if report.Checks[1].Error != "connection refused" {
		t.Errorf("check error = %q, want %q", report.Checks[1].Error, "connection refused")
	}
}

func TestClientEnqueueBatch(t *testing.T) {
	_, client := newAPIStub(t)

	items := []ptypes.WorkItem{
		{Kind: ptypes.PayloadKindTransfer, To: "0x0000000000000000000000000000000000000001", Value: "1"},
		{Kind: ptypes.PayloadKindTransfer, To: "0x0000000000000000000000000000000000000002", Value: "1"},
	}
	result, err := client.EnqueueBatch(items)
	if err != nil {
		t.Fatalf("EnqueueBatch() error: %v", err)
	}
	if result.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", result.Accepted)
	}
	if result.Status != "queued" {
		t.Errorf("Status = %q, want %q", result.Status, "queued")
	}
}

func TestClientLookupTx(t *testing.T) {
	_, client := newAPIStub(t)

	rec, err := client.LookupTx("0xabc")
	if err != nil {
		t.Fatalf("LookupTx() error: %v", err)
	}
	if rec.RunID != 7 || rec.AccountIndex != 3 || rec.Nonce != 101 {
		t.Errorf("record = run %d acct %d nonce %d, want run 7 acct 3 nonce 101", rec.RunID, rec.AccountIndex, rec.Nonce)
	}

	if _, err := client.LookupTx("0xmissing"); err == nil {
		t.Error("LookupTx() on unknown hash returned nil error, want HTTP 404 error")
	}
}
