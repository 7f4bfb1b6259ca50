package evaluation

import (
	"context"
	"fmt"
)

// Banks loads the quick and full question banks. Sources are read on every
// call so edits to the underlying files apply to the next evaluation.
type Banks struct {
	QuickSource Source
	FullSource  Source
	QuickSize   int
	Delimiter   rune
}

// Quick returns the first QuickSize questions of the quick source.
func (b Banks) Quick(ctx context.Context) (*QuestionBank, error) {
	bank, err := LoadQuestionBank(ctx, b.QuickSource, b.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("load quick bank %s: %w", b.QuickSource, err)
	}
	if b.QuickSize > 0 {
		bank = bank.Subset(b.QuickSize)
	}
	return bank, nil
}

// Full returns the whole full source.
func (b Banks) Full(ctx context.Context) (*QuestionBank, error) {
	bank, err := LoadQuestionBank(ctx, b.FullSource, b.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("load full bank %s: %w", b.FullSource, err)
	}
	return bank, nil
}
