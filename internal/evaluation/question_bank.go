package evaluation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DefaultDelimiter separates the question and label columns in bank files.
const DefaultDelimiter = ';'

// Question is one bank entry with the category it is expected to receive.
type Question struct {
	Text          string `json:"question"`
	ExpectedLabel string `json:"expected_label"`
}

// QuestionBank is an ordered set of questions keyed by their text.
type QuestionBank struct {
	questions []Question
	index     map[string]int
}

// NewQuestionBank builds a bank from questions, keeping the first position of
// duplicated texts and the last expected label seen for them.
func NewQuestionBank(questions []Question) *QuestionBank {
	bank := &QuestionBank{index: make(map[string]int, len(questions))}
	for _, q := range questions {
		bank.put(q.Text, q.ExpectedLabel)
	}
	return bank
}

func (b *QuestionBank) put(text, label string) {
	label = Normalize(label)
	if pos, ok := b.index[text]; ok {
		b.questions[pos].ExpectedLabel = label
		return
	}
	b.index[text] = len(b.questions)
	b.questions = append(b.questions, Question{Text: text, ExpectedLabel: label})
}

// Len returns the number of questions in the bank.
func (b *QuestionBank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.questions)
}

// Questions returns a copy of the questions in load order.
func (b *QuestionBank) Questions() []Question {
	if b == nil {
		return nil
	}
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// ExpectedLabel looks up the normalized expected label for a question text.
func (b *QuestionBank) ExpectedLabel(text string) (string, bool) {
	if b == nil {
		return "", false
	}
	pos, ok := b.index[text]
	if !ok {
		return "", false
	}
	return b.questions[pos].ExpectedLabel, true
}

// Subset returns a new bank holding the first n questions.
func (b *QuestionBank) Subset(n int) *QuestionBank {
	if b == nil {
		return NewQuestionBank(nil)
	}
	if n < 0 || n > len(b.questions) {
		n = len(b.questions)
	}
	return NewQuestionBank(b.questions[:n])
}

// ParseQuestionBank reads delimiter separated (question, label) rows. The first
// row is a header and rows with fewer than two columns are skipped.
func ParseQuestionBank(r io.Reader, delimiter rune) (*QuestionBank, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}

	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	bank := NewQuestionBank(nil)
	header := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("read question bank: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(row) < 2 {
			continue
		}
		bank.put(row[0], row[1])
	}

	return bank, nil
}

// LoadQuestionBank opens the source and parses it. A missing source yields an
// empty bank.
func LoadQuestionBank(ctx context.Context, source Source, delimiter rune) (*QuestionBank, error) {
	rc, err := source.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return NewQuestionBank(nil), nil
		}
		return nil, err
	}
	defer rc.Close()

	return ParseQuestionBank(rc, delimiter)
}
