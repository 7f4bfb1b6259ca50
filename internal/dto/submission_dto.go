package dto

import (
	"encoding/json"

	"github.com/noah-isme/promptgrade-api/internal/evaluation"
	"github.com/noah-isme/promptgrade-api/internal/models"
)

// SubmitRequest carries a user's prompt for grading.
type SubmitRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=128"`
	Solution string `json:"solution" validate:"max=20000"`
}

// SubmitResponse is the quick evaluation returned to the submitter.
type SubmitResponse struct {
	Score          float64             `json:"score"`
	Correct        int                 `json:"correct"`
	Total          int                 `json:"total"`
	Results        []evaluation.Result `json:"results"`
	NumUses        int                 `json:"num_uses"`
	RemainingTries int                 `json:"remaining_tries"`
	Degraded       bool                `json:"degraded"`
}

// ScoreRecordResponse exposes a stored submission.
type ScoreRecordResponse struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	QuickScore   float64             `json:"quick_score"`
	FinalScore   *float64            `json:"final_score"`
	Status       string              `json:"status"`
	Solution     string              `json:"solution"`
	SubmittedAt  string              `json:"submitted_at"`
	Timestamp    string              `json:"timestamp"`
	Tries        int                 `json:"tries"`
	QuickResults []evaluation.Result `json:"quick_results"`
}

// NewScoreRecordResponse converts a ScoreRecord into a DTO. FinalScore is nil
// while the record is pending.
func NewScoreRecordResponse(model models.ScoreRecord) ScoreRecordResponse {
	response := ScoreRecordResponse{
		ID:           model.ID,
		Name:         model.Name,
		QuickScore:   model.QuickScore,
		Status:       model.Status,
		Solution:     model.Solution,
		SubmittedAt:  model.SubmittedAt,
		Timestamp:    model.Timestamp,
		Tries:        model.Tries,
		QuickResults: []evaluation.Result{},
	}
	if !model.IsPending() {
		final := model.FinalScore
		response.FinalScore = &final
	}
	if len(model.QuickResults) > 0 {
		var results []evaluation.Result
		if err := json.Unmarshal(model.QuickResults, &results); err == nil {
			response.QuickResults = results
		}
	}
	return response
}
