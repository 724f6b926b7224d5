package session

import (
	"math"
	"regexp"
	"strings"

	"github.com/pavelanni/mocktest/internal/model"
)

const (
	pointsCorrect = 2.0
	penaltyWrong  = 0.5

	defaultSubject = "General Intelligence"
)

var (
	optionPrefix = regexp.MustCompile(`(?i)^[A-Z]\)\s*`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// NormalizeAnswer folds an answer for comparison: the leading option letter
// ("b) ") is dropped, surrounding space trimmed and case folded.
func NormalizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = optionPrefix.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// AnswersMatch reports whether a recorded answer equals the canonical one.
func AnswersMatch(recorded, canonical string) bool {
	return NormalizeAnswer(recorded) == NormalizeAnswer(canonical)
}

// sectionKey turns a label into a sectional-breakdown key ("Data Sufficiency" -> "data_sufficiency").
func sectionKey(label string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// score grades answers against the extracted questions.
func score(questions []model.QuestionRecord, answers map[int]string, topic string) model.Result {
	subject := topic
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}

	res := model.Result{
		Topic:              subject,
		TotalQuestions:     len(questions),
		SectionalBreakdown: make(map[string]float64),
		Answers:            make(map[int]string, len(answers)),
		Questions:          make([]model.QuestionOutcome, 0, len(questions)),
	}

	for i, q := range questions {
		label := q.Section
		if label == "" {
			label = subject
		}
		key := sectionKey(label)
		if _, ok := res.SectionalBreakdown[key]; !ok {
			res.SectionalBreakdown[key] = 0
		}

		outcome := model.QuestionOutcome{
			Index:         i,
			Question:      q.Text,
			Section:       q.Section,
			CorrectAnswer: q.Answer,
			Status:        model.OutcomeSkipped,
		}

		ans, ok := answers[i]
		if ok {
			res.Attempted++
			res.Answers[i] = ans
			outcome.Answer = ans
			if AnswersMatch(ans, q.Answer) {
				res.Correct++
				res.SectionalBreakdown[key] += pointsCorrect
				outcome.Status = model.OutcomeCorrect
			} else {
				res.Wrong++
				outcome.Status = model.OutcomeIncorrect
			}
		}
		res.Questions = append(res.Questions, outcome)
	}

	res.Score = round2(float64(res.Correct)*pointsCorrect - float64(res.Wrong)*penaltyWrong)
	if res.Attempted > 0 {
		res.Accuracy = round2(float64(res.Correct) / float64(res.Attempted) * 100)
	}
	for k, v := range res.SectionalBreakdown {
		res.SectionalBreakdown[k] = round2(v)
	}
	return res
}
