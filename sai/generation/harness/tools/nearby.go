package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

// NearbyToolName is the registered name of the nearby lookup tool.
const NearbyToolName = "nearby_search"

const nearbyDescription = "Search for nearby services like car rentals, hospitals, etc. " +
	"Use only when the user explicitly asks to find a local service."

// NearbySchema defines the JSON schema for the unbound nearby lookup.
const NearbySchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "What to look for, e.g. \"car rentals\" or \"hospital\""
    },
    "lat": {
      "type": "number",
      "description": "Latitude of the user"
    },
    "long": {
      "type": "number",
      "description": "Longitude of the user"
    },
    "client_id": {
      "type": "string",
      "description": "Client identifier"
    },
    "page": {
      "type": "integer",
      "minimum": 1,
      "default": 1
    },
    "limit": {
      "type": "integer",
      "minimum": 1,
      "default": 3
    }
  },
  "required": ["query", "lat", "long", "client_id"]
}`

// BoundNearbySchema is the schema the model sees once location and client
// are bound to the turn.
const BoundNearbySchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "What to look for, e.g. \"car rentals\" or \"hospital\""
    }
  },
  "required": ["query"]
}`

const maxNearbyResponseBytes = 4 << 20

// NearbyArgs are the parameters of one lookup.
type NearbyArgs struct {
	Query    string  `json:"query"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	ClientID string  `json:"client_id"`
	Page     int     `json:"page"`
	Limit    int     `json:"limit"`
}

// NearbyPlace is the subset of an upstream record handed to the model.
// Values are passed through untouched, null when absent.
type NearbyPlace struct {
	Name        json.RawMessage `json:"name"`
	Phone       json.RawMessage `json:"phone"`
	DistanceKm  json.RawMessage `json:"distance_km"`
	Description json.RawMessage `json:"description"`
}

// NearbyClient calls the location search service.
type NearbyClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      ports.Cache
	cacheTTL   int
	logger     zerolog.Logger
}

// NearbyOption configures a NearbyClient.
type NearbyOption func(*NearbyClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) NearbyOption {
	return func(c *NearbyClient) { c.httpClient = hc }
}

// WithCache memoizes successful lookups for ttlSeconds.
func WithCache(cache ports.Cache, ttlSeconds int) NearbyOption {
	return func(c *NearbyClient) {
		c.cache = cache
		c.cacheTTL = ttlSeconds
	}
}

// WithRateLimit paces outbound requests. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) NearbyOption {
	return func(c *NearbyClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewNearbyClient creates a client for endpoint with a per-request timeout.
func NewNearbyClient(endpoint string, timeout time.Duration, logger zerolog.Logger, opts ...NearbyOption) *NearbyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &NearbyClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "nearby").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the service URL.
func (c *NearbyClient) Endpoint() string { return c.endpoint }

// Search performs one lookup. It never fails: errors are returned as a
// JSON object with an "error" key.
func (c *NearbyClient) Search(ctx context.Context, args NearbyArgs) string {
	if args.Query == "" {
		return errorResult("query is required")
	}
	if args.Page <= 0 {
		args.Page = 1
	}
	if args.Limit <= 0 {
		args.Limit = 3
	}

	key := fmt.Sprintf("nearby:%s|%g|%g|%s|%d|%d", args.Query, args.Lat, args.Long, args.ClientID, args.Page, args.Limit)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			c.logger.Debug().Str("query", args.Query).Msg("nearby lookup served from cache")
			return string(cached)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errorResult(err.Error())
		}
	}

	places, err := c.fetch(ctx, args)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", args.Query).Msg("nearby lookup failed")
		return errorResult(err.Error())
	}

	out, err := json.Marshal(places)
	if err != nil {
		return errorResult(err.Error())
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, out, c.cacheTTL); err != nil {
			c.logger.Warn().Err(err).Msg("failed to cache nearby lookup")
		}
	}
	return string(out)
}

func (c *NearbyClient) fetch(ctx context.Context, args NearbyArgs) ([]NearbyPlace, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	c.logger.Debug().RawJSON("payload", payload).Msg("calling nearby search")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("nearby service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNearbyResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	places := make([]NearbyPlace, 0, len(envelope.Results))
	for _, rec := range envelope.Results {
		places = append(places, NearbyPlace{
			Name:        rec["name"],
			Phone:       coalesceRaw(rec, "phone", "number"),
			DistanceKm:  rec["distance_km"],
			Description: rec["description"],
		})
	}
	return places, nil
}

// Ping reports whether the service answers at all.
func (c *NearbyClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("nearby service returned status %d", resp.StatusCode)
	}
	return nil
}

// Bind returns the lookup with location and client fixed for one turn.
func (c *NearbyClient) Bind(lat, long float64, clientID string) *BoundNearbyTool {
	return &BoundNearbyTool{client: c, lat: lat, long: long, clientID: clientID}
}

// NearbyTool exposes the full lookup signature.
type NearbyTool struct {
	client *NearbyClient
}

// NewNearbyTool wraps client as a tool taking every parameter.
func NewNearbyTool(client *NearbyClient) *NearbyTool {
	return &NearbyTool{client: client}
}

func (t *NearbyTool) Name() string        { return NearbyToolName }
func (t *NearbyTool) Description() string { return nearbyDescription }
func (t *NearbyTool) Schema() []byte      { return []byte(NearbySchema) }

// Call decodes the arguments and runs the lookup.
func (t *NearbyTool) Call(ctx context.Context, raw json.RawMessage) string {
	var args NearbyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	return t.client.Search(ctx, args)
}

// BoundNearbyTool is a lookup bound to one turn's location and client. The
// model only supplies the query.
type BoundNearbyTool struct {
	client   *NearbyClient
	lat      float64
	long     float64
	clientID string
}

func (t *BoundNearbyTool) Name() string        { return NearbyToolName }
func (t *BoundNearbyTool) Description() string { return nearbyDescription }
func (t *BoundNearbyTool) Schema() []byte      { return []byte(BoundNearbySchema) }

// Call runs the lookup for the bound context.
func (t *BoundNearbyTool) Call(ctx context.Context, raw json.RawMessage) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	return t.client.Search(ctx, NearbyArgs{
		Query:    args.Query,
		Lat:      t.lat,
		Long:     t.long,
		ClientID: t.clientID,
	})
}

// coalesceRaw returns the first key whose value is neither null nor an
// empty string.
func coalesceRaw(rec map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok {
			continue
		}
		switch string(bytes.TrimSpace(v)) {
		case "", "null", `""`:
			continue
		}
		return v
	}
	return nil
}

func errorResult(msg string) string {
	out, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error": "internal error"}`
	}
	return string(out)
}

var (
	_ ports.Tool = (*NearbyTool)(nil)
	_ ports.Tool = (*BoundNearbyTool)(nil)
)
