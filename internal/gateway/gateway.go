// Package gateway translates caller requests into REST calls against the
// contract API and funnels successful payloads into the entity store. Every
// failure collapses to one user-facing notification plus a typed error.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/contractdesk/contractdesk/internal/contract"
)

const (
	// DefaultPageSize is what the server clamps list pages to regardless of
	// the requested limit, so the gateway always asks for exactly this much.
	DefaultPageSize = 10

	// DefaultWriteDelay paces update and delete calls. Carried over from the
	// original UX; not a retry mechanism.
	DefaultWriteDelay = 600 * time.Millisecond
)

// Store is the slice of the entity store the gateway writes into.
type Store interface {
	UpsertOne(contract.Contract)
	UpsertMany([]contract.Contract)
}

// Notifier receives the uniform failure notification for every error path.
type Notifier interface {
	Error(title, description string)
}

type Options struct {
	PageSize   int
	WriteDelay time.Duration
	Logger     *slog.Logger
}

type Gateway struct {
	client     *Client
	store      Store
	notifier   Notifier
	pageSize   int
	writeDelay time.Duration
	logger     *slog.Logger
}

func New(client *Client, store Store, notifier Notifier, opts Options) *Gateway {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	writeDelay := opts.WriteDelay
	if writeDelay < 0 {
		writeDelay = 0
	} else if writeDelay == 0 {
		writeDelay = DefaultWriteDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:     client,
		store:      store,
		notifier:   notifier,
		pageSize:   pageSize,
		writeDelay: writeDelay,
		logger:     logger,
	}
}

// ListResult carries the server's total count and the ids of the returned
// page in server order. The records themselves live in the store.
type ListResult struct {
	Total int     `json:"total"`
	IDs   []int64 `json:"contractsIds"`
}

type listResponse struct {
	Contracts []contract.Contract `json:"contracts"`
	Total     int                 `json:"total"`
}

// List fetches one filtered page of contracts and upserts every returned
// record. A non-empty search text is applied to both title and party fields,
// combined with the given condition (OR when unset).
func (g *Gateway) List(ctx context.Context, filters contract.Filters) (ListResult, error) {
	query := url.Values{}
	if filters.Status != "" {
		query.Set("status", string(filters.Status))
	}
	if filters.Search != "" {
		query.Set("title", filters.Search)
		query.Set("party", filters.Search)
	}
	condition := filters.Condition
	if condition == "" {
		condition = contract.ConditionOr
	}
	query.Set("condition", string(condition))
	page := filters.Page
	if page < 1 {
		page = 1
	}
	query.Set("page", strconv.Itoa(page))
	// The server overrides the limit anyway; request its fixed page size.
	query.Set("limit", strconv.Itoa(g.pageSize))

	var resp listResponse
	if err := g.client.doJSON(ctx, http.MethodGet, "/contracts", query, nil, &resp); err != nil {
		g.fail("Failed to fetch contracts",
			"Something went wrong while loading contracts. Please try again.",
			"list contracts", err)
		return ListResult{}, err
	}

	ids := make([]int64, 0, len(resp.Contracts))
	for _, record := range resp.Contracts {
		ids = append(ids, record.ID)
	}
	if len(resp.Contracts) > 0 {
		g.store.UpsertMany(resp.Contracts)
	}
	return ListResult{Total: resp.Total, IDs: ids}, nil
}

// GetByID fetches a single contract through the list endpoint's id filter.
// A transport failure notifies and returns the underlying error; an empty
// result returns ErrNotFound without a notification.
func (g *Gateway) GetByID(ctx context.Context, id int64) (int64, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(id, 10))

	var resp listResponse
	if err := g.client.doJSON(ctx, http.MethodGet, "/contracts", query, nil, &resp); err != nil {
		g.fail("Failed to fetch contracts",
			"Something went wrong while loading contract. Please try again.",
			"get contract", err, slog.Int64("id", id))
		return 0, err
	}
	if len(resp.Contracts) == 0 {
		return 0, fmt.Errorf("contract %d: %w", id, ErrNotFound)
	}
	g.store.UpsertOne(resp.Contracts[0])
	return resp.Contracts[0].ID, nil
}

// Create posts a new contract. The created record is returned, not inserted
// into the store; the caller decides whether and when to insert it.
func (g *Gateway) Create(ctx context.Context, draft contract.Draft) (contract.Contract, error) {
	if err := draft.Validate(); err != nil {
		g.fail("Failed to create a new contract", err.Error(), "create contract", err)
		return contract.Contract{}, err
	}

	var created contract.Contract
	if err := g.client.doJSON(ctx, http.MethodPost, "/contracts", nil, draft, &created); err != nil {
		g.fail("Failed to create a new contract",
			"Something went wrong while creating a new contract. Please try again.",
			"create contract", err)
		return contract.Contract{}, err
	}
	return created, nil
}

// Upload sends a contract document as a multipart request. Disallowed
// extensions and JSON documents that fail schema validation are rejected
// locally; no request is issued for them. Like Create, the result is not
// auto-inserted into the store.
func (g *Gateway) Upload(ctx context.Context, filename string, data []byte) (contract.Contract, error) {
	if err := contract.CheckUploadName(filename); err != nil {
		g.fail("Failed to create a new contract", err.Error(), "upload contract", err, slog.String("file", filename))
		return contract.Contract{}, err
	}
	if isJSONName(filename) {
		if err := contract.ValidatePayload(data); err != nil {
			g.fail("Failed to create a new contract", err.Error(), "upload contract", err, slog.String("file", filename))
			return contract.Contract{}, err
		}
	}

	var created contract.Contract
	if err := g.client.doMultipart(ctx, "/contracts/upload", filename, data, &created); err != nil {
		g.fail("Failed to create a new contract",
			"Something went wrong while creating a new contract. Please try again.",
			"upload contract", err, slog.String("file", filename))
		return contract.Contract{}, err
	}
	return created, nil
}

// Update applies a partial update after the pacing delay. The updated record
// is returned for the caller to merge into the store.
func (g *Gateway) Update(ctx context.Context, id int64, patch contract.Patch) (contract.Contract, error) {
	if err := patch.Validate(); err != nil {
		g.fail("Failed to update the contract", err.Error(), "update contract", err, slog.Int64("id", id))
		return contract.Contract{}, err
	}
	if err := waitWithContext(ctx, g.writeDelay); err != nil {
		return contract.Contract{}, err
	}

	var updated contract.Contract
	if err := g.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("/contracts/%d", id), nil, patch, &updated); err != nil {
		g.fail("Failed to update the contract",
			"Something went wrong while updating the contract. Please try again.",
			"update contract", err, slog.Int64("id", id))
		return contract.Contract{}, err
	}
	return updated, nil
}

// Delete removes a contract server-side after the pacing delay and returns
// the deleted id. The gateway does not touch the store; the push channel
// reconciles the removal, and callers may remove eagerly themselves.
func (g *Gateway) Delete(ctx context.Context, id int64) (int64, error) {
	if err := waitWithContext(ctx, g.writeDelay); err != nil {
		return 0, err
	}

	var resp struct {
		Deleted struct {
			ID int64 `json:"id"`
		} `json:"deleted"`
	}
	if err := g.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/contracts/%d", id), nil, nil, &resp); err != nil {
		g.fail("Failed to delete the contract",
			"Something went wrong while deleting the contract. Please try again.",
			"delete contract", err, slog.Int64("id", id))
		return 0, err
	}
	return resp.Deleted.ID, nil
}

// SummaryStats mirrors the dashboard-summary stats block. Change is opaque to
// the client and passed through for display.
type SummaryStats struct {
	Total     int             `json:"total"`
	Draft     int             `json:"draft"`
	Finalized int             `json:"finalized"`
	Change    json.RawMessage `json:"change,omitempty"`
}

type Summary struct {
	Stats             SummaryStats `json:"stats"`
	RecentContractIDs []int64      `json:"recentContractIds"`
}

// DashboardSummary fetches aggregate stats plus the most recent contracts,
// which are upserted into the store and returned as ids in server order.
func (g *Gateway) DashboardSummary(ctx context.Context) (Summary, error) {
	var resp struct {
		Stats           SummaryStats        `json:"stats"`
		RecentContracts []contract.Contract `json:"recentContracts"`
	}
	if err := g.client.doJSON(ctx, http.MethodGet, "/dashboard-summary", nil, nil, &resp); err != nil {
		g.fail("Failed to fetch dashboard data",
			"Something went wrong while loading Dashboard data. Please try again.",
			"dashboard summary", err)
		return Summary{}, err
	}

	ids := make([]int64, 0, len(resp.RecentContracts))
	for _, record := range resp.RecentContracts {
		ids = append(ids, record.ID)
	}
	if len(resp.RecentContracts) > 0 {
		g.store.UpsertMany(resp.RecentContracts)
	}
	return Summary{Stats: resp.Stats, RecentContractIDs: ids}, nil
}

func (g *Gateway) fail(title, description, op string, err error, attrs ...any) {
	g.logger.Warn(op+" failed", append([]any{slog.Any("err", err)}, attrs...)...)
	if g.notifier != nil {
		g.notifier.Error(title, description)
	}
}

func isJSONName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
