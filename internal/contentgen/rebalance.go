package contentgen

import (
	"fmt"
	"strings"

	"github.com/abhisek/coursepilot/internal/schemas"
)

// QuestionCounts is the number of questions requested per type.
type QuestionCounts struct {
	MultipleChoice int `json:"multiple_choice_count"`
	TrueFalse      int `json:"true_false_count"`
	FillBlank      int `json:"fill_blank_count"`
	ShortAnswer    int `json:"short_answer_count"`
	Essay          int `json:"essay_count"`
}

// Sum returns the total across all types.
func (c QuestionCounts) Sum() int {
	s := 0
	for _, n := range c.slice() {
		s += n
	}
	return s
}

func (c QuestionCounts) slice() []int {
	return []int{c.MultipleChoice, c.TrueFalse, c.FillBlank, c.ShortAnswer, c.Essay}
}

func countsFromSlice(s []int) QuestionCounts {
	return QuestionCounts{
		MultipleChoice: s[0],
		TrueFalse:      s[1],
		FillBlank:      s[2],
		ShortAnswer:    s[3],
		Essay:          s[4],
	}
}

// MaxQuestions bounds the questions requested from one generation call.
const MaxQuestions = 100

// Rebalance adjusts counts so they sum to exactly total.
//
// Over-specified counts are scaled by total/sum with integer truncation and
// the remainder goes to the last type that was requested. Under-specified
// counts receive the shortfall round-robin over the requested types, earlier
// types taking any remainder. When no type is requested every question is
// multiple choice.
func Rebalance(total int, counts QuestionCounts) (QuestionCounts, error) {
	if total < 1 {
		return QuestionCounts{}, &ErrMissingField{Field: "total_questions"}
	}
	if total > MaxQuestions {
		return QuestionCounts{}, &ErrOutOfRange{Field: "total_questions", Max: MaxQuestions}
	}
	in := counts.slice()
	for i, n := range in {
		in[i] = min(max(n, 0), MaxQuestions)
	}

	sum := 0
	lastNonZero := -1
	var active []int
	for i, n := range in {
		sum += n
		if n > 0 {
			lastNonZero = i
			active = append(active, i)
		}
	}

	out := make([]int, len(in))
	switch {
	case sum == 0:
		out[0] = total
	case sum > total:
		scaled := 0
		for i, n := range in {
			out[i] = n * total / sum
			scaled += out[i]
		}
		out[lastNonZero] += total - scaled
	default:
		copy(out, in)
		short := total - sum
		each, extra := short/len(active), short%len(active)
		for k, i := range active {
			out[i] += each
			if k < extra {
				out[i]++
			}
		}
	}
	return countsFromSlice(out), nil
}

var countLabels = []struct {
	typ   string
	label string
}{
	{schemas.TypeMultipleChoice, "multiple-choice"},
	{schemas.TypeTrueFalse, "true/false"},
	{schemas.TypeFillBlank, "fill-in-the-blank"},
	{schemas.TypeShortAnswer, "short-answer"},
	{schemas.TypeEssay, "essay"},
}

// countLines renders "Exactly N <type> question(s)" for every non-zero type.
func countLines(c QuestionCounts) string {
	var b strings.Builder
	for i, n := range c.slice() {
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "- Exactly %d %s question(s) (type %q)\n", n, countLabels[i].label, countLabels[i].typ)
	}
	return b.String()
}

// ByType returns the count requested for a question type.
func (c QuestionCounts) ByType(typ string) int {
	for i, l := range countLabels {
		if l.typ == typ {
			return c.slice()[i]
		}
	}
	return 0
}
