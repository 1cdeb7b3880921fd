package models

type RegimeHistoryRequest struct {
	N int `query:"n" json:"n" default:"96" validate:"gte=1,lte=5000"`
}

type BuildRequest struct {
	Mode string `query:"mode" json:"mode" default:"incremental" validate:"oneof=full incremental resume"`
	Wait bool   `query:"wait" json:"wait"`
}

type TriggerRequest struct {
	Wait bool `query:"wait" json:"wait"`
}

type BackfillRequest struct {
	From string `query:"from" json:"from" validate:"required"`
	Wait bool   `query:"wait" json:"wait"`
}

type CandlesRequest struct {
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
	Indicators bool   `query:"indicators" json:"indicators"`
}
