// Package indexer is the HTTP client for the off-chain indexer API: fast
// escrow queries, agent reputation stats, and the off-chain half of tasks
// and dispute reasons. Everything here is an acceleration or enrichment
// layer; escrow state reads always have a direct-ledger fallback and the
// facade handles falling back when this client errors.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/agentvault/internal/logging"
	"github.com/mbd888/agentvault/protocol"
)

const defaultTimeout = 30 * time.Second

// Client talks to an indexer deployment.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Timestamp tolerates the two encodings indexer deployments emit: unix
// epoch seconds (integer or float) and ISO-8601 strings.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if s[0] != '"' {
		epoch, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q is neither epoch nor string", s)
		}
		t.Time = time.Unix(int64(epoch), 0).UTC()
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", str)
}

// escrowRow is the indexer's escrow representation.
type escrowRow struct {
	Address          string    `json:"address"`
	Client           string    `json:"client"`
	Provider         string    `json:"provider"`
	Arbitrator       string    `json:"arbitrator"`
	TokenMint        string    `json:"token_mint"`
	Amount           uint64    `json:"amount"`
	ProtocolFeeBps   uint16    `json:"protocol_fee_bps"`
	ArbitratorFeeBps uint16    `json:"arbitrator_fee_bps"`
	Status           string    `json:"status"`
	VerificationType string    `json:"verification_type"`
	TaskHash         string    `json:"task_hash"`
	CriteriaCount    uint8     `json:"criteria_count"`
	CreatedAt        Timestamp `json:"created_at"`
	Deadline         Timestamp `json:"deadline"`
	GracePeriod      int64     `json:"grace_period"`
	ProofType        string    `json:"proof_type"`
	ProofSubmittedAt Timestamp `json:"proof_submitted_at"`
	DisputeRaisedBy  string    `json:"dispute_raised_by"`
}

func (r escrowRow) toInfo() *protocol.EscrowInfo {
	info := &protocol.EscrowInfo{
		Address:          r.Address,
		Client:           r.Client,
		Provider:         r.Provider,
		Arbitrator:       r.Arbitrator,
		TokenMint:        r.TokenMint,
		Amount:           r.Amount,
		ProtocolFeeBps:   r.ProtocolFeeBps,
		ArbitratorFeeBps: r.ArbitratorFeeBps,
		TaskHash:         r.TaskHash,
		CriteriaCount:    r.CriteriaCount,
		CreatedAt:        r.CreatedAt.Time,
		Deadline:         r.Deadline.Time,
		GracePeriod:      r.GracePeriod,
		ProofSubmittedAt: r.ProofSubmittedAt.Time,
		DisputedBy:       r.DisputeRaisedBy,
	}

	status := protocol.EscrowStatus(r.Status)
	if status.Valid() {
		info.Status = status
	} else {
		info.Status = protocol.DefaultStatus
		info.DecodeWarnings = append(info.DecodeWarnings,
			fmt.Sprintf("unknown status %q, using %s", r.Status, protocol.DefaultStatus))
	}
	verification := protocol.VerificationType(r.VerificationType)
	if verification.Valid() {
		info.Verification = verification
	} else {
		info.Verification = protocol.DefaultVerification
		info.DecodeWarnings = append(info.DecodeWarnings,
			fmt.Sprintf("unknown verification type %q, using %s", r.VerificationType, protocol.DefaultVerification))
	}
	if r.ProofType != "" {
		proof := protocol.ProofType(r.ProofType)
		if proof.Valid() {
			info.ProofType = proof
		} else {
			info.DecodeWarnings = append(info.DecodeWarnings,
				fmt.Sprintf("unknown proof type %q", r.ProofType))
		}
	}
	return info
}

// GetEscrow fetches one escrow by its address or id.
func (c *Client) GetEscrow(ctx context.Context, address string) (*protocol.EscrowInfo, error) {
	var row escrowRow
	if err := c.getJSON(ctx, "/escrows/"+url.PathEscape(address), nil, &row); err != nil {
		return nil, err
	}
	return row.toInfo(), nil
}

// ListEscrows queries escrows with server-side filtering and pagination.
// chain narrows multi-chain deployments; empty means no chain filter.
func (c *Client) ListEscrows(ctx context.Context, filter protocol.ListFilter, chain string) ([]*protocol.EscrowInfo, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(filter.EffectiveLimit()))
	q.Set("offset", strconv.Itoa(filter.Offset))
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Client != "" {
		q.Set("client", filter.Client)
	}
	if filter.Provider != "" {
		q.Set("provider", filter.Provider)
	}
	if chain != "" {
		q.Set("chain", chain)
	}

	var rows []escrowRow
	if err := c.getJSON(ctx, "/escrows", q, &rows); err != nil {
		return nil, err
	}
	infos := make([]*protocol.EscrowInfo, len(rows))
	for i, r := range rows {
		infos[i] = r.toInfo()
	}
	return infos, nil
}

// GetAgentStats fetches aggregated reputation stats for an agent. There is
// no ledger fallback for this data.
func (c *Client) GetAgentStats(ctx context.Context, address string) (*protocol.AgentStats, error) {
	var row struct {
		Address           string    `json:"address"`
		TotalEscrows      int       `json:"total_escrows"`
		CompletedEscrows  int       `json:"completed_escrows"`
		DisputedEscrows   int       `json:"disputed_escrows"`
		ExpiredEscrows    int       `json:"expired_escrows"`
		TotalVolume       uint64    `json:"total_volume"`
		SuccessRate       float64   `json:"success_rate"`
		AvgCompletionTime int64     `json:"avg_completion_time"`
		LastActive        Timestamp `json:"last_active"`
	}
	if err := c.getJSON(ctx, "/agents/"+url.PathEscape(address)+"/stats", nil, &row); err != nil {
		return nil, err
	}
	return &protocol.AgentStats{
		Address:           row.Address,
		TotalEscrows:      row.TotalEscrows,
		CompletedEscrows:  row.CompletedEscrows,
		DisputedEscrows:   row.DisputedEscrows,
		ExpiredEscrows:    row.ExpiredEscrows,
		TotalVolume:       row.TotalVolume,
		SuccessRate:       row.SuccessRate,
		AvgCompletionTime: row.AvgCompletionTime,
		LastActive:        row.LastActive.Time,
	}, nil
}

// SubmitDispute records a dispute reason off-chain. The on-chain dispute
// carries no reason text, so this is the only place it lives.
func (c *Client) SubmitDispute(ctx context.Context, escrowAddress, raisedBy, reason string) error {
	return c.postJSON(ctx, "/disputes", map[string]string{
		"escrow_address": escrowAddress,
		"raised_by":      raisedBy,
		"reason":         reason,
	})
}

// StoreTask stores the full task definition keyed by its commitment hash,
// linking the on-chain 32 bytes back to readable content.
func (c *Client) StoreTask(ctx context.Context, taskHashHex string, task protocol.Task) error {
	criteria := task.Criteria
	if criteria == nil {
		criteria = []protocol.TaskCriterion{}
	}
	return c.postJSON(ctx, "/tasks", map[string]any{
		"task_hash":   taskHashHex,
		"description": task.Description,
		"criteria":    criteria,
		"metadata":    task.Metadata,
	})
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ---- transport ----

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &protocol.TransportError{Op: "indexer get " + path, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &protocol.TransportError{Op: "indexer get " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &protocol.TransportError{
			Op:  "indexer get " + path,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: indexer response for %s: %v", protocol.ErrDecode, path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &protocol.TransportError{Op: "indexer post " + path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &protocol.TransportError{Op: "indexer post " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &protocol.TransportError{
			Op:  "indexer post " + path,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}
	return nil
}
