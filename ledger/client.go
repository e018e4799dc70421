// Package ledger talks JSON-RPC to the external consensus ledger that holds
// each case's escrow contract. The client classifies every submission into
// one of three outcomes: confirmed success (a finality receipt), confirmed
// rejection (the network processed and refused the instruction), or unknown
// (the instruction may or may not have been applied). Callers must never
// treat an unknown outcome as either success or failure.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"deedgateway/models"
)

// Beneficiary is one payout leg of a release instruction.
type Beneficiary struct {
	AccountID string
	Bps       uint32
}

// ReleaseInstruction encodes a single escrow payout against a previously
// provisioned ledger contract. The gross amount is carried as a decimal
// string wide enough for the ledger's native integer width.
type ReleaseInstruction struct {
	ContractRef   string
	CaseID        string
	Amount        models.Amount
	Beneficiaries []Beneficiary
}

// ReleaseReceipt is the finality receipt for a confirmed release.
type ReleaseReceipt struct {
	TxID   string `json:"txId"`
	Status string `json:"status"`
}

// TxStatus is the out-of-band reconciliation record for a transaction.
type TxStatus struct {
	TxID   string `json:"txId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Client abstracts the ledger RPC methods used by the escrow service.
type Client interface {
	SubmitRelease(ctx context.Context, instr ReleaseInstruction) (*ReleaseReceipt, error)
	QueryTransaction(ctx context.Context, txID string) (*TxStatus, error)
}

// RejectionError reports a confirmed refusal with the network's reason.
// The submission definitively did not apply; the caller may fix and retry.
type RejectionError struct {
	Code   int
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger: release rejected (code %d): %s", e.Code, e.Reason)
}

// ErrOutcomeUnknown marks an ambiguous submission: transport failure or
// timeout after the instruction may have reached the network. Resolution
// requires QueryTransaction out of band before any retry.
var ErrOutcomeUnknown = errors.New("ledger: submission outcome unknown")

// Config represents the RPC client configuration.
type Config struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
	GasLimit  uint64
	MaxFee    uint64
}

// RPCClient implements Client against the ledger's JSON-RPC endpoint.
type RPCClient struct {
	url        string
	authToken  string
	gasLimit   uint64
	maxFee     uint64
	httpClient *http.Client
	tracer     trace.Tracer
	nextID     atomic.Int64
}

// NewRPCClient constructs a JSON-RPC client targeting the supplied URL.
func NewRPCClient(cfg Config) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 2_000_000
	}
	return &RPCClient{
		url:       strings.TrimSpace(cfg.URL),
		authToken: strings.TrimSpace(cfg.AuthToken),
		gasLimit:  gasLimit,
		maxFee:    cfg.MaxFee,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer: otel.Tracer("deedgateway/ledger"),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorObj    `json:"error"`
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SubmitRelease posts the release instruction to the contract's release
// function and waits for the finality receipt within the client timeout.
func (c *RPCClient) SubmitRelease(ctx context.Context, instr ReleaseInstruction) (*ReleaseReceipt, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.SubmitRelease", trace.WithAttributes(
		attribute.String("contract_ref", instr.ContractRef),
		attribute.String("case_id", instr.CaseID),
		attribute.Int("beneficiaries", len(instr.Beneficiaries)),
	))
	defer span.End()

	beneficiaries := make([]map[string]any, 0, len(instr.Beneficiaries))
	for _, b := range instr.Beneficiaries {
		beneficiaries = append(beneficiaries, map[string]any{
			"account": b.AccountID,
			"bps":     b.Bps,
		})
	}
	payload := map[string]any{
		"contract":      instr.ContractRef,
		"function":      "releaseEscrow",
		"caseId":        instr.CaseID,
		"amount":        instr.Amount.String(),
		"beneficiaries": beneficiaries,
		"gasLimit":      c.gasLimit,
		"maxFee":        c.maxFee,
	}
	var receipt ReleaseReceipt
	if err := c.call(ctx, "escrow_release", []any{payload}, &receipt); err != nil {
		return nil, err
	}
	if strings.TrimSpace(receipt.TxID) == "" {
		// A finality receipt without a transaction id cannot be reconciled.
		return nil, fmt.Errorf("%w: receipt missing txId", ErrOutcomeUnknown)
	}
	return &receipt, nil
}

// QueryTransaction looks up the final status of a submitted transaction.
// Operators use it to resolve unknown outcomes before retrying a release.
func (c *RPCClient) QueryTransaction(ctx context.Context, txID string) (*TxStatus, error) {
	var status TxStatus
	if err := c.call(ctx, "tx_get", []any{map[string]string{"txId": txID}}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	id := c.nextID.Add(1)
	buf, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failure or timeout: the request may have reached the
		// network before the connection broke, so the outcome is ambiguous.
		return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: rpc %s status=%d body=%s", ErrOutcomeUnknown, method, resp.StatusCode, string(body))
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrOutcomeUnknown, err)
	}
	if rpcResp.Error != nil {
		// The network answered: it processed the instruction and refused it.
		return &RejectionError{Code: rpcResp.Error.Code, Reason: rpcResp.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%w: empty rpc result", ErrOutcomeUnknown)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
