package contentgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/coursepilot/internal/schemas"
)

func TestNormalizeQuestion_MultipleChoiceRepair(t *testing.T) {
	q, repairs := NormalizeQuestion(map[string]any{
		"question_text": "Pick one",
		"type":          "multiple_choice",
		"points":        float64(2),
		"content":       map[string]any{"options": []any{"A", "B", "C"}},
		"explanation":   "A is right",
	}, QuestionRules{})

	assert.Equal(t, "A", q.Content["correct_answer"])
	assert.Contains(t, repairs, "correct_answer")

	full := q.Content["full_options"].(map[string]any)["options"].([]Option)
	require.Len(t, full, 3)
	correct := 0
	for _, o := range full {
		if o.IsCorrect {
			correct++
			assert.Equal(t, "A", o.Text)
		}
	}
	assert.Equal(t, 1, correct)

	// Running it again over its own output changes nothing.
	again, _ := NormalizeQuestion(map[string]any{
		"question_text": q.QuestionText,
		"type":          q.Type,
		"points":        float64(q.Points),
		"content":       map[string]any{"options": []any{"A", "B", "C"}, "correct_answer": "A"},
		"explanation":   q.Explanation,
	}, QuestionRules{})
	assert.Equal(t, q.Content["correct_answer"], again.Content["correct_answer"])
	assert.Equal(t, full, again.Content["full_options"].(map[string]any)["options"].([]Option))
}

func TestNormalizeQuestion_MultipleChoiceWithoutOptions(t *testing.T) {
	q, repairs := NormalizeQuestion(map[string]any{
		"question_text": "Which loop?",
		"type":          "multiple_choice",
		"content":       map[string]any{},
	}, QuestionRules{})

	assert.Contains(t, repairs, "options")
	assert.Contains(t, repairs, "correct_answer")
	assert.Equal(t, "fewer than 2 options", q.defect())

	single, _ := NormalizeQuestion(map[string]any{
		"question_text": "Which loop?",
		"type":          "multiple_choice",
		"content":       map[string]any{"options": []any{"for"}, "correct_answer": "for"},
	}, QuestionRules{})
	assert.NotEmpty(t, single.defect())

	usable, _ := NormalizeQuestion(map[string]any{
		"question_text": "Which loop?",
		"type":          "multiple_choice",
		"content":       map[string]any{"options": []any{"for", "while"}},
	}, QuestionRules{})
	assert.Empty(t, usable.defect())
}

func TestNormalizeQuestion_MultipleChoiceLetterAnswer(t *testing.T) {
	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "Which loop keyword exists in Go?",
		"type":          "multiple-choice",
		"content": map[string]any{
			"options":        []any{"while", "for", "loop"},
			"correct_answer": "b",
		},
	}, QuestionRules{})
	assert.Equal(t, schemas.TypeMultipleChoice, q.Type)
	assert.Equal(t, "for", q.Content["correct_answer"])
}

func TestNormalizeQuestion_MultipleChoiceFromFullOptions(t *testing.T) {
	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "Q",
		"type":          "multiple_choice",
		"content": map[string]any{
			"full_options": map[string]any{"options": []any{
				map[string]any{"id": "x", "text": "one", "isCorrect": false, "explanation": "no"},
				map[string]any{"id": "y", "text": "two", "isCorrect": true, "explanation": "yes"},
			}},
		},
	}, QuestionRules{})
	assert.Equal(t, []string{"one", "two"}, q.Content["options"])
	assert.Equal(t, "two", q.Content["correct_answer"])
	full := q.Content["full_options"].(map[string]any)["options"].([]Option)
	assert.Equal(t, Option{ID: "y", Text: "two", IsCorrect: true, Explanation: "yes"}, full[1])
}

func TestNormalizeQuestion_TrueFalse(t *testing.T) {
	for _, in := range []any{"True", "TRUE", "true", " true ", true, "maybe", nil} {
		q, _ := NormalizeQuestion(map[string]any{
			"question_text": "Go has generics",
			"type":          "true_false",
			"content":       map[string]any{"correct_answer": in},
		}, QuestionRules{})
		assert.Equal(t, "true", q.Content["correct_answer"], "input %v", in)

		full := q.Content["full_options"].(map[string]any)
		assert.True(t, full["trueOption"].(Option).IsCorrect)
		assert.False(t, full["falseOption"].(Option).IsCorrect)
	}

	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "Go has a while keyword",
		"type":          "true_false",
		"content":       map[string]any{"correct_answer": "FALSE"},
	}, QuestionRules{})
	assert.Equal(t, "false", q.Content["correct_answer"])
}

func TestNormalizeQuestion_FillBlankDefaults(t *testing.T) {
	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "The ___ keyword declares a loop",
		"type":          "fill_blank",
	}, QuestionRules{})
	assert.Equal(t, []string{}, q.Content["blanks"])
	assert.Equal(t, map[string]any{}, q.Content["correct_answers"])
	assert.Equal(t, 1, q.Points)
}

func TestNormalizeQuestion_FillBlankListAnswers(t *testing.T) {
	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "___ and ___",
		"type":          "fill_blank",
		"content": map[string]any{
			"blanks":          []any{"first", "second"},
			"correct_answers": []any{"for", "range"},
		},
	}, QuestionRules{})
	assert.Equal(t, map[string]any{"first": "for", "second": "range"}, q.Content["correct_answers"])
}

func TestNormalizeQuestion_ShortAnswerDefaults(t *testing.T) {
	q, _ := NormalizeQuestion(map[string]any{
		"question_text": "Explain a goroutine",
		"type":          "short_answer",
		"content":       map[string]any{},
	}, QuestionRules{})
	assert.Equal(t, "", q.Content["correct_answer"])
	assert.Equal(t, true, q.Content["accept_variations"])
}

func TestNormalizeQuestion_UnknownTypeAndPoints(t *testing.T) {
	q, repairs := NormalizeQuestion(map[string]any{
		"question_text": "Match the pairs",
		"type":          "matching",
		"points":        float64(-3),
	}, QuestionRules{})
	assert.Equal(t, schemas.TypeShortAnswer, q.Type)
	assert.Equal(t, 1, q.Points)
	assert.Contains(t, repairs, "type")
	assert.Contains(t, repairs, "points")
}

func TestNormalizeQuestion_EssayRubric(t *testing.T) {
	raw := func() map[string]any {
		return map[string]any{
			"question_text": "Discuss concurrency",
			"type":          "essay",
			"content":       map[string]any{"instructions": "500 words", "rubric": "10 pts"},
			"explanation":   "A model answer",
		}
	}

	stripped, _ := NormalizeQuestion(raw(), QuestionRules{StripEssayRubric: true})
	_, has := stripped.Content["rubric"]
	assert.False(t, has)
	assert.Equal(t, "A model answer", stripped.Explanation)
	assert.Equal(t, "500 words", stripped.Content["instructions"])

	kept, _ := NormalizeQuestion(raw(), QuestionRules{})
	assert.Equal(t, "10 pts", kept.Content["rubric"])
}

func TestNormalizeQuestion_DoesNotMutateInput(t *testing.T) {
	content := map[string]any{"options": []any{"A", "B"}, "rubric": "x"}
	NormalizeQuestion(map[string]any{"question_text": "Q", "type": "essay", "content": content},
		QuestionRules{StripEssayRubric: true})
	assert.Contains(t, content, "rubric")
}
