package model

import "time"

// OutcomeStatus is the grading verdict for a single question.
type OutcomeStatus string

const (
	OutcomeCorrect   OutcomeStatus = "correct"
	OutcomeIncorrect OutcomeStatus = "incorrect"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Result is the payload produced when an exam session is submitted.
type Result struct {
	Candidate          string             `json:"user_id"`
	Topic              string             `json:"topic"`
	TotalQuestions     int                `json:"total_questions"`
	Attempted          int                `json:"attempted"`
	Correct            int                `json:"correct"`
	Wrong              int                `json:"wrong"`
	Score              float64            `json:"score"`
	Accuracy           float64            `json:"accuracy"`
	TimeSpent          int                `json:"time_spent"`
	SectionalBreakdown map[string]float64 `json:"sectional_breakdown"`
	Answers            map[int]string     `json:"per_question_answers"`
	Questions          []QuestionOutcome  `json:"questions,omitempty"`
	SubmittedAt        time.Time          `json:"submitted_at"`
}

// QuestionOutcome holds per-question data for the analysis view.
type QuestionOutcome struct {
	Index         int           `json:"index"`
	Question      string        `json:"question"`
	Section       string        `json:"section,omitempty"`
	Answer        string        `json:"answer,omitempty"`
	CorrectAnswer string        `json:"correct_answer"`
	Status        OutcomeStatus `json:"status"`
}

// Transcript is the raw text of one generation stream.
type Transcript struct {
	ID            string     `json:"id"`
	Candidate     string     `json:"candidate"`
	Topic         string     `json:"topic"`
	Difficulty    string     `json:"difficulty"`
	Raw           string     `json:"raw"`
	QuestionCount int        `json:"question_count"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// TranscriptExport is the top-level JSON structure for transcript export.
type TranscriptExport struct {
	ExportedAt  time.Time    `json:"exported_at"`
	Count       int          `json:"count"`
	Transcripts []Transcript `json:"transcripts"`
}
