// Package hyperliquid is the client for the exchange's public WebSocket feed
// and /info REST endpoint. Wire shapes are decoded into tagged structs here
// and converted to domain types once, at the boundary.
package hyperliquid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/shopspring/decimal"
)

// Channel names used by the WebSocket feed.
const (
	ChannelL2Book       = "l2Book"
	ChannelTrades       = "trades"
	ChannelSubscription = "subscriptionResponse"
	ChannelPong         = "pong"
	ChannelError        = "error"
)

// SubscriptionSpec is the subscription object of a subscribe command.
type SubscriptionSpec struct {
	Type     string `json:"type"`
	Coin     string `json:"coin,omitempty"`
	NSigFigs *int   `json:"nSigFigs,omitempty"`
	Mantissa *int   `json:"mantissa,omitempty"`
}

// Key identifies the subscription for bookkeeping.
func (s SubscriptionSpec) Key() string {
	key := s.Type + ":" + s.Coin
	if s.NSigFigs != nil {
		key += ":" + strconv.Itoa(*s.NSigFigs)
	}
	if s.Mantissa != nil {
		key += ":" + strconv.Itoa(*s.Mantissa)
	}
	return key
}

// L2BookSubscription returns the depth subscription for sub. A zero
// precision requests full precision.
func L2BookSubscription(sub domain.Subscription) SubscriptionSpec {
	spec := SubscriptionSpec{Type: ChannelL2Book, Coin: sub.Coin}
	if sub.Precision.SigFigs > 0 {
		n := sub.Precision.SigFigs
		spec.NSigFigs = &n
	}
	if sub.Precision.Mantissa > 0 {
		m := sub.Precision.Mantissa
		spec.Mantissa = &m
	}
	return spec
}

// TradesSubscription returns the trade subscription for coin.
func TradesSubscription(coin string) SubscriptionSpec {
	return SubscriptionSpec{Type: ChannelTrades, Coin: coin}
}

// WSCommand is a client-to-server WebSocket message.
type WSCommand struct {
	Method       string            `json:"method"`
	Subscription *SubscriptionSpec `json:"subscription,omitempty"`
}

// WSEnvelope is the outer shape of every server message.
type WSEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WSLevel is one aggregated level of an l2Book message.
type WSLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// L2BookMessage is the data of an l2Book message. Levels[0] are bids and
// Levels[1] asks, each best-first.
type L2BookMessage struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [2][]WSLevel `json:"levels"`
}

// WSTrade is one element of a trades message.
type WSTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
	Hash string `json:"hash"`
	TID  int64  `json:"tid"`
}

// BookToDomain converts an l2Book message, dropping malformed levels. The
// second result is the number of levels dropped.
func BookToDomain(m *L2BookMessage) (domain.BookSnapshot, int) {
	snap := domain.BookSnapshot{Coin: m.Coin, Time: millis(m.Time)}
	var dropped, n int
	snap.Bids, n = levelsToDomain(m.Levels[0])
	dropped += n
	snap.Asks, n = levelsToDomain(m.Levels[1])
	dropped += n
	return snap, dropped
}

func levelsToDomain(in []WSLevel) ([]domain.PriceLevel, int) {
	out := make([]domain.PriceLevel, 0, len(in))
	dropped := 0
	for _, l := range in {
		px, err := decimal.NewFromString(l.Px)
		if err != nil {
			dropped++
			continue
		}
		sz, err := decimal.NewFromString(l.Sz)
		if err != nil {
			dropped++
			continue
		}
		lvl := domain.PriceLevel{Price: px, Size: sz, Orders: uint32(max(l.N, 0))}
		if !lvl.Valid() {
			dropped++
			continue
		}
		out = append(out, lvl)
	}
	return out, dropped
}

// TradesToDomain converts a trades message, dropping malformed trades. The
// second result is the number of trades dropped.
func TradesToDomain(in []WSTrade) ([]domain.Trade, int) {
	out := make([]domain.Trade, 0, len(in))
	dropped := 0
	for _, t := range in {
		tr, ok := tradeToDomain(t)
		if !ok {
			dropped++
			continue
		}
		out = append(out, tr)
	}
	return out, dropped
}

func tradeToDomain(t WSTrade) (domain.Trade, bool) {
	var side domain.OrderSide
	switch t.Side {
	case "B":
		side = domain.OrderSideBuy
	case "A":
		side = domain.OrderSideSell
	default:
		return domain.Trade{}, false
	}
	px, err := decimal.NewFromString(t.Px)
	if err != nil {
		return domain.Trade{}, false
	}
	sz, err := decimal.NewFromString(t.Sz)
	if err != nil {
		return domain.Trade{}, false
	}
	tr := domain.Trade{
		Coin:  t.Coin,
		Side:  side,
		Price: px,
		Size:  sz,
		Time:  millis(t.Time),
		Hash:  t.Hash,
		TID:   t.TID,
	}
	return tr, tr.Valid()
}

// --------------------------------------------------------------------------
// /info payloads
// --------------------------------------------------------------------------

// InfoRequest is the body of a POST /info call.
type InfoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// APIAsset is one entry of meta.universe.
type APIAsset struct {
	Name          string `json:"name"`
	SzDecimals    int    `json:"szDecimals"`
	MaxLeverage   int    `json:"maxLeverage"`
	MarginTableID int    `json:"marginTableId"`
	OnlyIsolated  bool   `json:"onlyIsolated"`
	IsDelisted    bool   `json:"isDelisted"`
}

// APIMarginTier is one row of a margin table.
type APIMarginTier struct {
	LowerBound  string `json:"lowerBound"`
	MaxLeverage int    `json:"maxLeverage"`
}

// APIMarginTable is a margin table as sent inside meta.marginTables.
type APIMarginTable struct {
	Description string          `json:"description"`
	MarginTiers []APIMarginTier `json:"marginTiers"`
}

// APIMarginTableEntry is an [id, table] tuple.
type APIMarginTableEntry struct {
	ID    int
	Table APIMarginTable
}

// UnmarshalJSON decodes the two-element tuple form.
func (e *APIMarginTableEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("margin table entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("margin table id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Table); err != nil {
		return fmt.Errorf("margin table %d: %w", e.ID, err)
	}
	return nil
}

// APIMeta is the response of {"type":"meta"}.
type APIMeta struct {
	Universe     []APIAsset            `json:"universe"`
	MarginTables []APIMarginTableEntry `json:"marginTables"`
}

// APIAssetCtx is one element of the asset context list.
type APIAssetCtx struct {
	Funding      string  `json:"funding"`
	OpenInterest string  `json:"openInterest"`
	OraclePx     string  `json:"oraclePx"`
	MarkPx       string  `json:"markPx"`
	MidPx        *string `json:"midPx"`
}

// APILeverage is the leverage setting of a position.
type APILeverage struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	RawUsd string `json:"rawUsd"`
}

// APIPosition is the position object inside clearinghouseState.
type APIPosition struct {
	Coin          string      `json:"coin"`
	Szi           string      `json:"szi"`
	EntryPx       *string     `json:"entryPx"`
	PositionValue string      `json:"positionValue"`
	UnrealizedPnl string      `json:"unrealizedPnl"`
	LiquidationPx *string     `json:"liquidationPx"`
	MarginUsed    string      `json:"marginUsed"`
	Leverage      APILeverage `json:"leverage"`
}

// APIAssetPosition wraps a position with its position type.
type APIAssetPosition struct {
	Type     string      `json:"type"`
	Position APIPosition `json:"position"`
}

// APIMarginSummary is the account-level margin summary.
type APIMarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

// APIClearinghouseState is the response of {"type":"clearinghouseState"}.
type APIClearinghouseState struct {
	MarginSummary              APIMarginSummary   `json:"marginSummary"`
	CrossMarginSummary         APIMarginSummary   `json:"crossMarginSummary"`
	CrossMaintenanceMarginUsed string             `json:"crossMaintenanceMarginUsed"`
	Withdrawable               string             `json:"withdrawable"`
	AssetPositions             []APIAssetPosition `json:"assetPositions"`
	Time                       int64              `json:"time"`
}

// Universe is the decoded meta: assets in index order and margin tables by
// id.
type Universe struct {
	Assets       []domain.AssetInfo
	MarginTables map[int][]margin.LeverageTier
}

// ToUniverse converts the meta response.
func (m *APIMeta) ToUniverse() (Universe, error) {
	u := Universe{
		Assets:       make([]domain.AssetInfo, 0, len(m.Universe)),
		MarginTables: make(map[int][]margin.LeverageTier, len(m.MarginTables)),
	}
	for i, a := range m.Universe {
		u.Assets = append(u.Assets, domain.AssetInfo{
			Coin:          a.Name,
			Index:         i,
			SzDecimals:    a.SzDecimals,
			MaxLeverage:   a.MaxLeverage,
			MarginTableID: a.MarginTableID,
			OnlyIsolated:  a.OnlyIsolated,
		})
	}
	for _, e := range m.MarginTables {
		rows := make([]margin.LeverageTier, 0, len(e.Table.MarginTiers))
		for _, t := range e.Table.MarginTiers {
			lb, err := decimal.NewFromString(t.LowerBound)
			if err != nil {
				return Universe{}, fmt.Errorf("margin table %d: lower bound %q: %w", e.ID, t.LowerBound, err)
			}
			rows = append(rows, margin.LeverageTier{LowerBound: lb, MaxLeverage: t.MaxLeverage})
		}
		u.MarginTables[e.ID] = rows
	}
	return u, nil
}

// ToDomain converts an asset context. Unparseable numbers become zero.
func (c *APIAssetCtx) ToDomain(coin string, ts time.Time) domain.AssetContext {
	ctx := domain.AssetContext{
		Coin:         coin,
		MarkPrice:    dec(c.MarkPx),
		OraclePrice:  dec(c.OraclePx),
		Funding:      dec(c.Funding),
		OpenInterest: dec(c.OpenInterest),
		Time:         ts,
	}
	if c.MidPx != nil {
		ctx.MidPrice = dec(*c.MidPx)
	}
	return ctx
}

// ToDomain converts a clearinghouse state for address.
func (s *APIClearinghouseState) ToDomain(address string) domain.AccountState {
	st := domain.AccountState{
		Address:                    address,
		AccountValue:               dec(s.MarginSummary.AccountValue),
		TotalMarginUsed:            dec(s.MarginSummary.TotalMarginUsed),
		CrossMaintenanceMarginUsed: dec(s.CrossMaintenanceMarginUsed),
		Withdrawable:               dec(s.Withdrawable),
		Time:                       millis(s.Time),
	}
	for _, ap := range s.AssetPositions {
		p := ap.Position
		pos := domain.Position{
			Coin:          p.Coin,
			Size:          dec(p.Szi),
			PositionValue: dec(p.PositionValue),
			UnrealizedPnl: dec(p.UnrealizedPnl),
			Leverage:      p.Leverage.Value,
			Mode:          domain.MarginModeCross,
		}
		if p.EntryPx != nil {
			pos.EntryPrice = dec(*p.EntryPx)
		}
		if p.LiquidationPx != nil {
			pos.LiquidationPrice = dec(*p.LiquidationPx)
		}
		if p.Leverage.Type == "isolated" {
			pos.Mode = domain.MarginModeIsolated
			pos.IsolatedMargin = dec(p.MarginUsed)
		}
		st.Positions = append(st.Positions, pos)
	}
	return st
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
