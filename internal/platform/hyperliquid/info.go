package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// InfoClient is the REST client for the /info endpoint. Requests are
// throttled by a token bucket shared by every caller.
type InfoClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewInfoClient creates a client for baseURL (e.g.
// "https://api.hyperliquid.xyz"). rps and burst bound the request rate; a
// non-positive rps disables throttling.
func NewInfoClient(baseURL string, rps float64, burst int) *InfoClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &InfoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// MetaAndAssetCtxs returns the universe together with the live context of
// every asset, keyed by coin.
func (c *InfoClient) MetaAndAssetCtxs(ctx context.Context) (Universe, map[string]domain.AssetContext, error) {
	var raw []json.RawMessage
	if err := c.post(ctx, InfoRequest{Type: "metaAndAssetCtxs"}, &raw); err != nil {
		return Universe{}, nil, fmt.Errorf("hyperliquid/info: metaAndAssetCtxs: %w", err)
	}
	if len(raw) != 2 {
		return Universe{}, nil, fmt.Errorf("hyperliquid/info: metaAndAssetCtxs: want 2 elements, got %d", len(raw))
	}

	var meta APIMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return Universe{}, nil, fmt.Errorf("hyperliquid/info: decode meta: %w", err)
	}
	var apiCtxs []APIAssetCtx
	if err := json.Unmarshal(raw[1], &apiCtxs); err != nil {
		return Universe{}, nil, fmt.Errorf("hyperliquid/info: decode asset ctxs: %w", err)
	}

	u, err := meta.ToUniverse()
	if err != nil {
		return Universe{}, nil, fmt.Errorf("hyperliquid/info: metaAndAssetCtxs: %w", err)
	}

	now := time.Now()
	ctxs := make(map[string]domain.AssetContext, len(apiCtxs))
	for i := range apiCtxs {
		if i >= len(u.Assets) {
			break
		}
		coin := u.Assets[i].Coin
		ctxs[coin] = apiCtxs[i].ToDomain(coin, now)
	}
	return u, ctxs, nil
}

// ClearinghouseState returns the margin summary and positions of address.
func (c *InfoClient) ClearinghouseState(ctx context.Context, address string) (domain.AccountState, error) {
	if !common.IsHexAddress(address) {
		return domain.AccountState{}, fmt.Errorf("hyperliquid/info: %w: %q", domain.ErrInvalidAddress, address)
	}
	user := strings.ToLower(common.HexToAddress(address).Hex())

	var st APIClearinghouseState
	if err := c.post(ctx, InfoRequest{Type: "clearinghouseState", User: user}, &st); err != nil {
		return domain.AccountState{}, fmt.Errorf("hyperliquid/info: clearinghouseState: %w", err)
	}
	return st.ToDomain(user), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// post sends body to /info and decodes the JSON response into out.
func (c *InfoClient) post(ctx context.Context, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, data); err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
