package evaluation

// Result is the graded answer for one question.
type Result struct {
	Question                 string `json:"question"`
	RawClassification        string `json:"classification"`
	NormalizedClassification string `json:"normalized_classification"`
	ExpectedLabel            string `json:"expected_label"`
	Correct                  bool   `json:"correct"`
}

// Outcome is the graded batch. Degraded marks outcomes produced by the fallback
// path after a dispatch failure.
type Outcome struct {
	Results  []Result `json:"results"`
	Score    float64  `json:"score"`
	Correct  int      `json:"correct"`
	Total    int      `json:"total"`
	Degraded bool     `json:"degraded"`
}

// Aggregate grades raw answers against the bank. When dispatchErr is set every
// bank question is reported as unknown and incorrect.
func Aggregate(answers []RawAnswer, dispatchErr error, bank *QuestionBank) Outcome {
	if dispatchErr != nil {
		return fallbackOutcome(bank)
	}

	results := make([]Result, 0, len(answers))
	correct := 0
	for _, answer := range answers {
		expected, _ := bank.ExpectedLabel(answer.Question)
		normalized := Normalize(answer.RawClassification)
		isCorrect := normalized == Normalize(expected)
		if isCorrect {
			correct++
		}
		results = append(results, Result{
			Question:                 answer.Question,
			RawClassification:        answer.RawClassification,
			NormalizedClassification: normalized,
			ExpectedLabel:            expected,
			Correct:                  isCorrect,
		})
	}

	return Outcome{
		Results: results,
		Score:   score(correct, len(results)),
		Correct: correct,
		Total:   len(results),
	}
}

func fallbackOutcome(bank *QuestionBank) Outcome {
	questions := bank.Questions()
	results := make([]Result, 0, len(questions))
	for _, q := range questions {
		results = append(results, Result{
			Question:                 q.Text,
			NormalizedClassification: UnknownLabel,
			ExpectedLabel:            q.ExpectedLabel,
		})
	}
	return Outcome{Results: results, Total: len(results), Degraded: true}
}

func score(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
