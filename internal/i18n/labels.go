package i18n

import (
	"context"

	"github.com/pavelanni/mocktest/internal/model"
)

// ViewLabels are the display strings for one session view.
type ViewLabels struct {
	Title     string            `json:"title"`
	Status    string            `json:"status,omitempty"`
	Progress  string            `json:"progress,omitempty"`
	Answer    string            `json:"answer_hint,omitempty"`
	TimeLeft  string            `json:"time_left"`
	Mark      string            `json:"mark"`
	Next      string            `json:"next"`
	Previous  string            `json:"previous"`
	Submit    string            `json:"submit"`
	Palette   map[string]string `json:"palette"`
	Outcomes  map[string]string `json:"outcomes,omitempty"`
	Submitted string            `json:"submitted,omitempty"`
	Attempted string            `json:"attempted,omitempty"`
}

var paletteMessages = map[model.PaletteStatus]string{
	model.PaletteNotVisited:  "StatusNotVisited",
	model.PaletteNotAnswered: "StatusNotAnswered",
	model.PaletteAnswered:    "StatusAnswered",
	model.PaletteMarked:      "StatusMarked",
}

var outcomeMessages = map[model.OutcomeStatus]string{
	model.OutcomeCorrect:   "OutcomeCorrect",
	model.OutcomeIncorrect: "OutcomeIncorrect",
	model.OutcomeSkipped:   "OutcomeSkipped",
}

// Labels localizes the strings a client needs to render v.
func Labels(ctx context.Context, v model.SessionView) ViewLabels {
	l := ViewLabels{
		Title:    T(ctx, "AppTitle"),
		TimeLeft: Td(ctx, "TimeLeft", map[string]any{"Clock": v.Clock}),
		Next:     T(ctx, "SaveAndNext"),
		Previous: T(ctx, "Previous"),
		Submit:   T(ctx, "SubmitTest"),
		Palette:  make(map[string]string, len(paletteMessages)),
	}
	if v.Marked {
		l.Mark = T(ctx, "UnmarkReview")
	} else {
		l.Mark = T(ctx, "MarkForReview")
	}
	for status, id := range paletteMessages {
		l.Palette[string(status)] = T(ctx, id)
	}

	switch {
	case v.Total == 0 && v.State != model.StateTerminated:
		l.Status = T(ctx, "PreparingQuestions")
	case v.Generating:
		l.Status = Tp(ctx, "QuestionsAvailable", v.Total) + " " + T(ctx, "GeneratingMore")
	default:
		l.Status = Tp(ctx, "QuestionsAvailable", v.Total)
	}
	if v.Total > 0 {
		l.Progress = Td(ctx, "QuestionN", map[string]any{"N": v.CurrentIndex + 1, "Total": v.Total})
	}

	if v.Question != nil {
		if v.Question.IsFreeText() {
			l.Answer = T(ctx, "TypeAnswer")
		} else {
			l.Answer = T(ctx, "ChooseOption")
		}
	}

	if v.Result != nil {
		l.Outcomes = make(map[string]string, len(outcomeMessages))
		for status, id := range outcomeMessages {
			l.Outcomes[string(status)] = T(ctx, id)
		}
		l.Submitted = Td(ctx, "ExamSubmitted", map[string]any{
			"Score":    v.Result.Score,
			"Accuracy": v.Result.Accuracy,
		})
		l.Attempted = Tpd(ctx, "QuestionsAttempted", v.Result.Attempted, map[string]any{
			"Total": v.Result.TotalQuestions,
		})
	}
	return l
}
