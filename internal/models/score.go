package models

import (
	"time"

	"gorm.io/datatypes"
)

// TimestampLayout is fixed-width so that string order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const (
	// ScoreStatusPending marks a record whose full evaluation has not completed.
	ScoreStatusPending = "pending"
	// ScoreStatusFinalized marks a record carrying a final score.
	ScoreStatusFinalized = "finalized"
)

// ScoreRecord is one accepted submission of a user.
type ScoreRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:128;not null;index:idx_score_name_submitted,priority:1;uniqueIndex:idx_score_name_tries,priority:1" json:"name"`
	QuickScore   float64        `gorm:"not null;default:0" json:"quick_score"`
	FinalScore   float64        `gorm:"not null;default:0" json:"final_score"`
	Status       string         `gorm:"size:16;not null;default:pending;index" json:"status"`
	Solution     string         `gorm:"type:text;not null" json:"solution"`
	SubmittedAt  string         `gorm:"size:32;not null;index:idx_score_name_submitted,priority:2" json:"submitted_at"`
	Timestamp    string         `gorm:"size:32;not null" json:"timestamp"`
	Tries        int            `gorm:"not null;default:0;uniqueIndex:idx_score_name_tries,priority:2" json:"tries"`
	QuickResults datatypes.JSON `gorm:"type:json" json:"quick_results,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsPending reports whether the final score is still outstanding.
func (r ScoreRecord) IsPending() bool {
	return r.Status != ScoreStatusFinalized
}

// FormatTimestamp renders t in the stored timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp.
func ParseTimestamp(value string) (time.Time, error) {
	return time.Parse(TimestampLayout, value)
}
