package models

// CalendarEntry is a radar item the user saved to their personal calendar.
type CalendarEntry struct {
	RadarItem
	AddedAt int64 `json:"addedAt"` // unix millis
}

// CalendarResponse is the API response for the calendar endpoint.
type CalendarResponse struct {
	Items []CalendarEntry `json:"items"`
	Total int             `json:"total"`
	Days  int             `json:"days"`
}
