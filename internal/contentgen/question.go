package contentgen

import (
	"strconv"
	"strings"

	"github.com/abhisek/coursepilot/internal/schemas"
)

// Question is a normalized assessment question. Content holds the
// type-specific payload; see NormalizeQuestion for what each type carries.
type Question struct {
	QuestionText string         `json:"question_text"`
	Type         string         `json:"type"`
	Points       int            `json:"points"`
	Content      map[string]any `json:"content"`
	Explanation  string         `json:"explanation"`
	LessonTitle  string         `json:"lesson_title,omitempty"`
}

// Option is one entry of a question's full_options.
type Option struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// QuestionRules toggles generator-specific normalization.
type QuestionRules struct {
	// StripEssayRubric removes content.rubric from essay questions. The
	// model answer for an assignment essay lives in explanation only.
	StripEssayRubric bool
}

// Repairs lists what NormalizeQuestion had to fill in or correct.
type Repairs []string

func (r *Repairs) add(what string) { *r = append(*r, what) }

var typeAliases = map[string]string{
	"mcq":                schemas.TypeMultipleChoice,
	"multiple_choice":    schemas.TypeMultipleChoice,
	"multiplechoice":     schemas.TypeMultipleChoice,
	"true_false":         schemas.TypeTrueFalse,
	"truefalse":          schemas.TypeTrueFalse,
	"boolean":            schemas.TypeTrueFalse,
	"fill_blank":         schemas.TypeFillBlank,
	"fill_in_blank":      schemas.TypeFillBlank,
	"fill_in_the_blank":  schemas.TypeFillBlank,
	"fill_in_the_blanks": schemas.TypeFillBlank,
	"short_answer":       schemas.TypeShortAnswer,
	"essay":              schemas.TypeEssay,
	"long_answer":        schemas.TypeEssay,
}

func normalizeType(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(key)
	t, ok := typeAliases[key]
	return t, ok
}

// NormalizeQuestion fills in every field a question of its type must carry.
// It never fails: unknown types become short_answer and missing values get
// their defaults.
//
//	multiple_choice  options, correct_answer (one of options), full_options.options
//	true_false       correct_answer "true"|"false", full_options.trueOption/falseOption
//	fill_blank       blanks, correct_answers
//	short_answer     correct_answer, accept_variations (default true)
//	essay            instructions; rubric removed when rules.StripEssayRubric
func NormalizeQuestion(raw map[string]any, rules QuestionRules) (Question, Repairs) {
	var rep Repairs

	q := Question{
		QuestionText: stringOf(raw["question_text"]),
		Explanation:  stringOf(raw["explanation"]),
		LessonTitle:  stringOf(raw["lesson_title"]),
	}
	if q.QuestionText == "" {
		// Some models answer with "question" or "text".
		if alt := firstString(raw, "question", "text"); alt != "" {
			q.QuestionText = alt
			rep.add("question_text")
		}
	}

	typ, ok := normalizeType(stringOf(raw["type"]))
	if !ok {
		typ = schemas.TypeShortAnswer
		rep.add("type")
	}
	q.Type = typ

	q.Points = intOf(raw["points"], 0)
	if q.Points < 1 {
		q.Points = 1
		rep.add("points")
	}

	content := objectOf(raw["content"])
	if content == nil {
		content = map[string]any{}
		rep.add("content")
	} else {
		content = cloneMap(content)
	}
	// Models sometimes put options or answers at the top level.
	for _, k := range []string{"options", "correct_answer"} {
		if _, has := content[k]; !has {
			if v, top := raw[k]; top {
				content[k] = v
			}
		}
	}

	switch typ {
	case schemas.TypeMultipleChoice:
		normalizeMultipleChoice(content, q.Explanation, &rep)
	case schemas.TypeTrueFalse:
		normalizeTrueFalse(content, q.Explanation, &rep)
	case schemas.TypeFillBlank:
		normalizeFillBlank(content, &rep)
	case schemas.TypeShortAnswer:
		normalizeShortAnswer(content, &rep)
	case schemas.TypeEssay:
		normalizeEssay(content, rules, &rep)
	}
	q.Content = content
	return q, rep
}

func normalizeMultipleChoice(content map[string]any, explanation string, rep *Repairs) {
	options := stringsOf(content["options"])
	modelOpts := parseOptions(objectOf(content["full_options"]))
	if len(options) == 0 && len(modelOpts) > 0 {
		for _, o := range modelOpts {
			if o.Text != "" {
				options = append(options, o.Text)
			}
		}
		rep.add("options")
	}

	answer := stringOf(content["correct_answer"])
	if len(options) > 0 && !contains(options, answer) {
		switch {
		case letterIndex(answer, len(options)) >= 0:
			answer = options[letterIndex(answer, len(options))]
		case markedCorrect(modelOpts, options) != "":
			answer = markedCorrect(modelOpts, options)
		default:
			answer = options[0]
		}
		rep.add("correct_answer")
	}

	full := make([]Option, len(options))
	for i, text := range options {
		full[i] = Option{
			ID:        optionID(i),
			Text:      text,
			IsCorrect: text == answer,
		}
		if m := findOption(modelOpts, text); m != nil {
			full[i].Explanation = m.Explanation
			if m.ID != "" {
				full[i].ID = m.ID
			}
		}
		if full[i].IsCorrect && full[i].Explanation == "" {
			full[i].Explanation = explanation
		}
	}
	// Duplicate option texts would mark more than one option correct.
	seen := false
	for i := range full {
		if full[i].IsCorrect {
			if seen {
				full[i].IsCorrect = false
			}
			seen = true
		}
	}
	if len(modelOpts) != len(options) {
		rep.add("full_options")
	}
	if len(options) < minOptions {
		rep.add("options")
	}
	if answer == "" {
		rep.add("correct_answer")
	}

	content["options"] = options
	content["correct_answer"] = answer
	content["full_options"] = map[string]any{"options": full}
}

// minOptions is the fewest options a multiple-choice question can be asked
// with.
const minOptions = 2

// defect reports why a normalized question cannot be used, or "" when it
// can. Repairs never invent options or answers, so such questions are
// dropped instead.
func (q Question) defect() string {
	switch {
	case q.QuestionText == "":
		return "no question text"
	case q.Type == schemas.TypeMultipleChoice && len(stringsOf(q.Content["options"])) < minOptions:
		return "fewer than 2 options"
	case q.Type == schemas.TypeMultipleChoice && stringOf(q.Content["correct_answer"]) == "":
		return "no correct answer"
	}
	return ""
}

func normalizeTrueFalse(content map[string]any, explanation string, rep *Repairs) {
	answer := strings.ToLower(stringOf(content["correct_answer"]))
	switch answer {
	case "true", "false":
	case "t", "yes":
		answer = "true"
		rep.add("correct_answer")
	case "f", "no":
		answer = "false"
		rep.add("correct_answer")
	default:
		answer = "true"
		rep.add("correct_answer")
	}

	full := objectOf(content["full_options"])
	trueOpt := optionFrom(objectOf(full["trueOption"]))
	falseOpt := optionFrom(objectOf(full["falseOption"]))
	if full == nil || full["trueOption"] == nil || full["falseOption"] == nil {
		rep.add("full_options")
	}

	trueOpt.ID, trueOpt.Text, trueOpt.IsCorrect = "true", "True", answer == "true"
	falseOpt.ID, falseOpt.Text, falseOpt.IsCorrect = "false", "False", answer == "false"
	if trueOpt.IsCorrect && trueOpt.Explanation == "" {
		trueOpt.Explanation = explanation
	}
	if falseOpt.IsCorrect && falseOpt.Explanation == "" {
		falseOpt.Explanation = explanation
	}

	content["correct_answer"] = answer
	content["full_options"] = map[string]any{"trueOption": trueOpt, "falseOption": falseOpt}
}

func normalizeFillBlank(content map[string]any, rep *Repairs) {
	if _, ok := content["blanks"].([]any); !ok {
		content["blanks"] = stringsOf(content["blanks"])
		rep.add("blanks")
	}
	if objectOf(content["correct_answers"]) == nil {
		answers := map[string]any{}
		// A list of answers maps onto blanks by position.
		if list, ok := content["correct_answers"].([]any); ok {
			for i, a := range list {
				answers[blankKey(content["blanks"], i)] = a
			}
		}
		content["correct_answers"] = answers
		rep.add("correct_answers")
	}
}

func normalizeShortAnswer(content map[string]any, rep *Repairs) {
	if _, ok := content["correct_answer"].(string); !ok {
		content["correct_answer"] = stringOf(content["correct_answer"])
		rep.add("correct_answer")
	}
	if _, ok := content["accept_variations"].(bool); !ok {
		content["accept_variations"] = boolOf(content["accept_variations"], true)
		rep.add("accept_variations")
	}
}

func normalizeEssay(content map[string]any, rules QuestionRules, rep *Repairs) {
	if _, ok := content["instructions"].(string); !ok {
		content["instructions"] = stringOf(content["instructions"])
		rep.add("instructions")
	}
	if rules.StripEssayRubric {
		if _, ok := content["rubric"]; ok {
			delete(content, "rubric")
			rep.add("rubric")
		}
	}
}

func parseOptions(full map[string]any) []Option {
	list, ok := full["options"].([]any)
	if !ok {
		return nil
	}
	out := make([]Option, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, optionFrom(v))
		case string:
			out = append(out, Option{Text: strings.TrimSpace(v)})
		}
	}
	return out
}

func optionFrom(m map[string]any) Option {
	return Option{
		ID:          stringOf(m["id"]),
		Text:        stringOf(m["text"]),
		IsCorrect:   boolOf(m["isCorrect"], false),
		Explanation: stringOf(m["explanation"]),
	}
}

func findOption(opts []Option, text string) *Option {
	for i := range opts {
		if opts[i].Text == text {
			return &opts[i]
		}
	}
	return nil
}

func markedCorrect(opts []Option, options []string) string {
	for _, o := range opts {
		if o.IsCorrect && contains(options, o.Text) {
			return o.Text
		}
	}
	return ""
}

// letterIndex maps an answer given as an option letter ("B") to its index.
func letterIndex(answer string, n int) int {
	if len(answer) != 1 {
		return -1
	}
	c := answer[0] | 0x20
	if c < 'a' || c > 'z' {
		return -1
	}
	if i := int(c - 'a'); i < n {
		return i
	}
	return -1
}

func optionID(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return "opt" + strconv.Itoa(i+1)
}

func blankKey(blanks any, i int) string {
	if names := stringsOf(blanks); i < len(names) {
		return names[i]
	}
	return "blank_" + strconv.Itoa(i+1)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
