package domain

// ReportingCurrency is the currency forecasts are expressed in.
const ReportingCurrency = "USD"

// Forecast is a probability-weighted pipeline total in USD.
type Forecast struct {
	Pipeline      Pipeline        `json:"pipeline"`
	Currency      string          `json:"currency"`
	Total         float64         `json:"total"`
	WeightedTotal float64         `json:"weighted_total"`
	FXAvailable   bool            `json:"fx_available"`
	ExcludedDeals int             `json:"excluded_deals"`
	ByStage       []StageForecast `json:"by_stage"`
}

// StageForecast is one stage's share of a forecast.
type StageForecast struct {
	StageID       string      `json:"stage_id"`
	Name          string      `json:"name"`
	Status        StageStatus `json:"status"`
	Probability   float64     `json:"probability"`
	Weight        float64     `json:"weight"`
	DealCount     int         `json:"deal_count"`
	Total         float64     `json:"total"`
	WeightedTotal float64     `json:"weighted_total"`
}

// Dashboard summarises the caller-visible state of a tenant.
type Dashboard struct {
	OpenDeals        int     `json:"open_deals"`
	WonDeals         int     `json:"won_deals"`
	LostDeals        int     `json:"lost_deals"`
	OpenValue        float64 `json:"open_value"`
	Currency         string  `json:"currency"`
	FXAvailable      bool    `json:"fx_available"`
	OpenTasks        int     `json:"open_tasks"`
	OutstandingTotal float64 `json:"outstanding_total"`
}
