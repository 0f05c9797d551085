package graph

import "encoding/json"

// Account is the ad account as returned by the connectivity probe.
// Fetched once per run and held read-only.
type Account struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Status    int    `json:"account_status"`
}

// RawActivity is one opaque billing event from the activities endpoint.
// EventTime arrives as an ISO string or a numeric epoch; ExtraData is a JSON
// object or a JSON-encoded string. Both are kept raw and interpreted by the
// extractor.
type RawActivity struct {
	EventType string          `json:"event_type"`
	EventTime json.RawMessage `json:"event_time"`
	ExtraData json.RawMessage `json:"extra_data"`
}

// Page is one page of activity results plus the cursor to the next one.
type Page struct {
	Records []RawActivity
	Next    string
}

// activitiesResponse mirrors the Graph API response envelope.
type activitiesResponse struct {
	Data   []RawActivity `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}
