package models

// HistoryRequest is the query of GET /api/signals/history.
type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
