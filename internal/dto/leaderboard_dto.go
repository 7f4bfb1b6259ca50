package dto

// LeaderboardEntry is one user's standing.
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Timestamp string  `json:"timestamp"`
}

// LeaderboardQuery describes leaderboard query parameters.
type LeaderboardQuery struct {
	Limit int `query:"limit" validate:"omitempty,gte=1,lte=100"`
}
