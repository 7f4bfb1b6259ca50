package dto

// RescoreSummary reports the outcome of a pending-submission sweep.
type RescoreSummary struct {
	Processed int                `json:"processed"`
	Finalized int                `json:"finalized"`
	Failed    int                `json:"failed"`
	Standings []LeaderboardEntry `json:"standings"`
}
