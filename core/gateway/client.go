// Package gateway reads the upstream gateway's snapshot endpoint. The
// observer only ever reads from the gateway; it never writes back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	coreerrors "github.com/davidahmann/observer/core/errors"
	"github.com/davidahmann/observer/core/trace"
)

const (
	DefaultLimit          = 200
	DefaultRequestTimeout = 10 * time.Second
	DefaultPollInterval   = time.Second

	maxSnapshotBytes = 64 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for baseURL. A non-positive timeout falls back
// to DefaultRequestTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, coreerrors.Wrap(
			fmt.Errorf("gateway base url is empty"),
			coreerrors.CategoryInvalidInput,
			"gateway_url_missing",
			"set --gateway-url or OBSERVER_GATEWAY_URL",
			false,
		)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, coreerrors.Wrap(
			fmt.Errorf("invalid gateway base url %q", baseURL),
			coreerrors.CategoryInvalidInput,
			"gateway_url_invalid",
			"use an absolute http(s) url",
			false,
		)
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type Query struct {
	StreamID string
	Lane     string
	Offset   int64
	Limit    int
}

// Snapshot is one page of gateway events. The paging fields are nil when the
// gateway answered with a bare list.
type Snapshot struct {
	Events  []any
	Length  *int64
	Offset  *int64
	Limit   *int64
	VDigest *string
}

// SnapshotURL renders the request url for query.
func (c *Client) SnapshotURL(query Query) string {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	streamID := query.StreamID
	if streamID == "" {
		streamID = "default"
	}
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(max(query.Offset, 0), 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("stream_id", streamID)
	if query.Lane != "" {
		params.Set("lane", query.Lane)
	}
	return c.baseURL + "/snapshot?" + params.Encode()
}

// FetchRaw returns the decoded snapshot body as-is. Numbers stay json.Number.
func (c *Client) FetchRaw(ctx context.Context, query Query) (any, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SnapshotURL(query), nil)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("build snapshot request: %w", err), coreerrors.CategoryInternalFailure, "gateway_request_invalid", "", false)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, coreerrors.Wrap(
			fmt.Errorf("fetch gateway snapshot: %w", err),
			coreerrors.CategoryNetworkTransient,
			"gateway_unreachable",
			"check that the gateway is running and reachable",
			true,
		)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxSnapshotBytes))
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("read gateway snapshot: %w", err), coreerrors.CategoryNetworkTransient, "gateway_read_failed", "", true)
	}
	if response.StatusCode != http.StatusOK {
		category := coreerrors.CategoryNetworkPermanent
		retryable := false
		if response.StatusCode >= 500 || response.StatusCode == http.StatusTooManyRequests {
			category = coreerrors.CategoryNetworkTransient
			retryable = true
		}
		return nil, coreerrors.Wrap(
			fmt.Errorf("gateway snapshot returned status %d", response.StatusCode),
			category,
			"gateway_status",
			"",
			retryable,
		)
	}
	decoded, err := trace.DecodeJSON(body)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("decode gateway snapshot: %w", err), coreerrors.CategoryInvalidInput, "gateway_snapshot_invalid", "", false)
	}
	return decoded, nil
}

// FetchSnapshot fetches one page. The body must be a list of events or an
// object with an "events" list.
func (c *Client) FetchSnapshot(ctx context.Context, query Query) (Snapshot, error) {
	decoded, err := c.FetchRaw(ctx, query)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(decoded)
}

func decodeSnapshot(decoded any) (Snapshot, error) {
	switch typed := decoded.(type) {
	case []any:
		return Snapshot{Events: typed}, nil
	case map[string]any:
		events, ok := typed["events"].([]any)
		if !ok {
			break
		}
		snapshot := Snapshot{
			Events: events,
			Length: optionalInt(typed["length"]),
			Offset: optionalInt(typed["offset"]),
			Limit:  optionalInt(typed["limit"]),
		}
		if vDigest, ok := typed["v_digest"].(string); ok {
			snapshot.VDigest = &vDigest
		}
		return snapshot, nil
	}
	return Snapshot{}, coreerrors.Wrap(
		errors.New("snapshot response is not a list or envelope"),
		coreerrors.CategoryInvalidInput,
		"gateway_snapshot_invalid",
		"",
		false,
	)
}

func optionalInt(value any) *int64 {
	number, ok := value.(interface{ Int64() (int64, error) })
	if !ok {
		return nil
	}
	parsed, err := number.Int64()
	if err != nil {
		return nil
	}
	return &parsed
}

type ObserveOptions struct {
	Query        Query
	Follow       bool
	PollInterval time.Duration
}

// Observe pages through the stream from Query.Offset and hands every event
// to emit in gateway order. Without Follow it stops after the first page.
// With Follow an empty page waits for the poll limiter before polling again;
// cancellation of ctx ends the loop with ctx.Err().
func (c *Client) Observe(ctx context.Context, options ObserveOptions, emit func(map[string]any) error) error {
	interval := options.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow()

	query := options.Query
	for {
		snapshot, err := c.FetchSnapshot(ctx, query)
		if err != nil {
			return err
		}
		for position, item := range snapshot.Events {
			obj, ok := item.(map[string]any)
			if !ok {
				return coreerrors.Wrap(
					fmt.Errorf("gateway event at offset %d is not an object", query.Offset+int64(position)),
					coreerrors.CategoryInvalidInput,
					"gateway_event_invalid",
					"",
					false,
				)
			}
			if err := emit(obj); err != nil {
				return err
			}
		}
		query.Offset += int64(len(snapshot.Events))
		if !options.Follow {
			return nil
		}
		if len(snapshot.Events) == 0 {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
		}
	}
}
