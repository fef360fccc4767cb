package polymarket

import "encoding/json"

// Raw Polymarket API DTOs, used only inside this package.
// Conversion to domain types lives in mapping.go.

// --- CLOB API ---

// orderBookRequest is one item of the POST /books batch body.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse is one book of the POST /books response.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Market  string         `json:"market"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw is a price level; the API sends strings.
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Data API ---

// dataPosition is one item of GET /positions.
type dataPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnl      float64 `json:"cashPnl"`
	PercentPnl   float64 `json:"percentPnl"`
	TotalBought  float64 `json:"totalBought"`
	CurPrice     float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	EndDate      string  `json:"endDate"`
	NegativeRisk bool    `json:"negativeRisk"`
}

// --- Gamma API ---

type gammaMarketsResponse []gammaMarket

// gammaMarket carries the fields used for end-time enrichment.
// Some numeric fields arrive as JSON strings.
type gammaMarket struct {
	ConditionID string      `json:"conditionId"`
	Question    string      `json:"question"`
	EndDateISO  string      `json:"endDateIso"`
	EndDate     string      `json:"endDate"`
	Liquidity   json.Number `json:"liquidity"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
}
