package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deedgateway/models"
)

func testInstruction(t *testing.T) ReleaseInstruction {
	t.Helper()
	amount, err := models.NewAmount(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	return ReleaseInstruction{
		ContractRef: "0.0.5005",
		CaseID:      "7b0c0b4e-0000-0000-0000-000000000001",
		Amount:      amount,
		Beneficiaries: []Beneficiary{
			{AccountID: "0.0.1001", Bps: 6000},
			{AccountID: "0.0.1002", Bps: 4000},
		},
	}
}

func TestSubmitReleaseConfirmed(t *testing.T) {
	var gotMethod string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string           `json:"method"`
			Params []map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotMethod = req.Method
		if len(req.Params) == 1 {
			gotPayload = req.Params[0]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]string{"txId": "tx-abc", "status": "SUCCESS"},
		})
	}))
	defer srv.Close()

	client := NewRPCClient(Config{URL: srv.URL, GasLimit: 2_000_000, MaxFee: 500_000_000})
	receipt, err := client.SubmitRelease(context.Background(), testInstruction(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.TxID != "tx-abc" || receipt.Status != "SUCCESS" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if gotMethod != "escrow_release" {
		t.Fatalf("unexpected rpc method %q", gotMethod)
	}
	if gotPayload["amount"] != "1000000" {
		t.Fatalf("amount must travel as a decimal string, got %v", gotPayload["amount"])
	}
	if gotPayload["function"] != "releaseEscrow" {
		t.Fatalf("unexpected contract function %v", gotPayload["function"])
	}
}

func TestSubmitReleaseRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32000, "message": "INSUFFICIENT_PAYER_BALANCE"},
		})
	}))
	defer srv.Close()

	client := NewRPCClient(Config{URL: srv.URL})
	_, err := client.SubmitRelease(context.Background(), testInstruction(t))
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rejection.Reason != "INSUFFICIENT_PAYER_BALANCE" {
		t.Fatalf("unexpected reason %q", rejection.Reason)
	}
	if errors.Is(err, ErrOutcomeUnknown) {
		t.Fatal("a confirmed rejection must not be classified as unknown")
	}
}

func TestSubmitReleaseServerErrorIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewRPCClient(Config{URL: srv.URL})
	_, err := client.SubmitRelease(context.Background(), testInstruction(t))
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("expected unknown outcome, got %v", err)
	}
}

func TestSubmitReleaseTimeoutIsUnknown(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewRPCClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.SubmitRelease(context.Background(), testInstruction(t))
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("expected unknown outcome on timeout, got %v", err)
	}
}

func TestSubmitReleaseMissingTxIDIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]string{"status": "SUCCESS"},
		})
	}))
	defer srv.Close()

	client := NewRPCClient(Config{URL: srv.URL})
	_, err := client.SubmitRelease(context.Background(), testInstruction(t))
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("expected unknown outcome for receipt without txId, got %v", err)
	}
}

func TestQueryTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "tx_get" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]string{"txId": "tx-abc", "status": "SUCCESS"},
		})
	}))
	defer srv.Close()

	client := NewRPCClient(Config{URL: srv.URL})
	status, err := client.QueryTransaction(context.Background(), "tx-abc")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status.Status != "SUCCESS" {
		t.Fatalf("unexpected status %+v", status)
	}
}
