package extract

import (
	"reflect"
	"strings"
	"testing"
)

const sampleStream = "Here is your exam:\n```json\n[\n" +
	`{"name": "Reasoning", "questions": [` +
	`{"question_text": "Odd one out?", "options": ["A) 2", "B) 4", "C) 7"], "answer": "C) 7"},` +
	`{"question": "Next in series 1, 3, 5?", "options": ["6", "7"], "answer": "7",},` +
	`{"question_text": "Type the missing digit", "answer": "9"}` +
	"]},\n" +
	`{"question": "Capital of France?", "options": ["Paris", "Rome"], "answer": "Paris", "difficulty": "easy"},` + "\n" +
	`{"question": "Explain {braces} in text", "options": [], "answer": "ok", "explanation": "line one` + "\n" + `line two"}` +
	"\n]\n```"

func texts(t *testing.T, buf string) []string {
	t.Helper()
	var out []string
	for _, r := range Extract(buf) {
		out = append(out, r.Text)
	}
	return out
}

func TestExtractNoArrayYet(t *testing.T) {
	for _, buf := range []string{"", "Sure! Generating", `{"question": "not in array"}`} {
		got := Extract(buf)
		if got == nil || len(got) != 0 {
			t.Errorf("Extract(%q) = %v, want empty non-nil list", buf, got)
		}
	}
}

func TestExtractSample(t *testing.T) {
	got := Extract(sampleStream)
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d: %+v", len(got), got)
	}

	want := []string{
		"Odd one out?",
		"Next in series 1, 3, 5?",
		"Type the missing digit",
		"Capital of France?",
		"Explain {braces} in text",
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("record %d text = %q, want %q", i, got[i].Text, w)
		}
	}

	for i := 0; i < 3; i++ {
		if got[i].Section != "Reasoning" {
			t.Errorf("record %d section = %q, want Reasoning", i, got[i].Section)
		}
	}
	if got[3].Section != "" {
		t.Errorf("standalone record section = %q, want empty", got[3].Section)
	}

	if !got[2].IsFreeText() || got[2].Options == nil {
		t.Errorf("record 2 should have empty non-nil options, got %#v", got[2].Options)
	}
	if got[4].Explanation != "line one\nline two" {
		t.Errorf("explanation = %q, want embedded newline preserved", got[4].Explanation)
	}
	if string(got[3].Extra["difficulty"]) != `"easy"` {
		t.Errorf("extra difficulty = %s, want passthrough", got[3].Extra["difficulty"])
	}
}

func TestExtractTrailingPartial(t *testing.T) {
	buf := `[{"question":"Q1","options":["A","B"],"answer":"A"},{"question":"Q2"`
	got := Extract(buf)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Text != "Q1" || got[0].Answer != "A" {
		t.Errorf("unexpected record %+v", got[0])
	}
	if !reflect.DeepEqual(got[0].Options, []string{"A", "B"}) {
		t.Errorf("options = %v", got[0].Options)
	}

	// Completing the object recovers it.
	got = Extract(buf + `,"options":["X"],"answer":"X"}]`)
	if len(got) != 2 || got[1].Text != "Q2" {
		t.Fatalf("expected Q2 once completed, got %+v", got)
	}
}

func TestExtractMalformedBlockIsolation(t *testing.T) {
	buf := `[{"question": "First", "answer": "1"},` +
		`{"question": "Broken", "answer": 1 2 3},` +
		`{"question": "Third", "answer": "3"}]`
	got := texts(t, buf)
	want := []string{"First", "Third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("texts = %v, want %v", got, want)
	}
}

func TestExtractSectionFlatteningOrder(t *testing.T) {
	buf := `[{"name": "Maths", "questions": [` +
		`{"question": "M1"}, {"question_text": "M2"}, {"question": "M3"}]},` +
		`{"question": "S1"}]`
	got := texts(t, buf)
	want := []string{"M1", "M2", "M3", "S1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("texts = %v, want %v", got, want)
	}
}

func TestExtractFieldMapping(t *testing.T) {
	tests := []struct {
		name    string
		buf     string
		text    string
		answer  string
		options []string
		ok      bool
	}{
		{"question_text wins", `[{"question_text": "A", "question": "B"}]`, "A", "", []string{}, true},
		{"blank question_text falls back", `[{"question_text": "  ", "question": "B"}]`, "B", "", []string{}, true},
		{"options not array", `[{"question": "Q", "options": "A,B"}]`, "Q", "", []string{}, true},
		{"numeric answer", `[{"question": "Q", "options": ["1", "2"], "answer": 2}]`, "Q", "2", []string{"1", "2"}, true},
		{"correct_answer alias", `[{"question": "Q", "correct_answer": "B"}]`, "Q", "B", []string{}, true},
		{"non-string options", `[{"question": "Q", "options": [1, true]}]`, "Q", "", []string{"1", "true"}, true},
		{"noise object", `[{"note": "ignore me"}]`, "", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.buf)
			if !tt.ok {
				if len(got) != 0 {
					t.Fatalf("expected no records, got %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 record, got %d", len(got))
			}
			if got[0].Text != tt.text {
				t.Errorf("text = %q, want %q", got[0].Text, tt.text)
			}
			if got[0].Answer != tt.answer {
				t.Errorf("answer = %q, want %q", got[0].Answer, tt.answer)
			}
			if !reflect.DeepEqual(got[0].Options, tt.options) {
				t.Errorf("options = %#v, want %#v", got[0].Options, tt.options)
			}
		})
	}
}

func TestExtractSectionVariants(t *testing.T) {
	t.Run("other array field", func(t *testing.T) {
		buf := `[{"section_name": "GK", "items": [{"question": "G1"}, {"question": "G2"}]}]`
		got := Extract(buf)
		if len(got) != 2 || got[0].Section != "GK" || got[1].Text != "G2" {
			t.Errorf("unexpected records %+v", got)
		}
	})

	t.Run("child without prompt", func(t *testing.T) {
		buf := `[{"name": "X", "questions": [{"options": ["a"]}, "junk", {"question": "Q"}]}]`
		got := texts(t, buf)
		want := []string{missingText, "Q"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("texts = %v, want %v", got, want)
		}
	})

	t.Run("wrapped in object", func(t *testing.T) {
		buf := `{"exam": [{"name": "A", "questions": [{"question": "A1"}]}, {"name": "B", "questions": [{"question": "B1"}]}]}`
		got := Extract(buf)
		if len(got) != 2 || got[0].Section != "A" || got[1].Section != "B" {
			t.Errorf("unexpected records %+v", got)
		}
	})
}

func TestExtractUnescapedQuote(t *testing.T) {
	buf := `[{"question": "What does "hello" mean?", "answer": "greeting"}, {"question": "Next"}]`
	got := texts(t, buf)
	want := []string{`What does "hello" mean?`, "Next"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("texts = %v, want %v", got, want)
	}
}

func TestExtractOpenSection(t *testing.T) {
	head := `[{"name": "Reasoning", "questions": [` +
		`{"question_text": "Q1", "answer": "A"},` +
		`{"question_text": "Q2", "answer": "B"},` +
		`{"question_text": "Q3", "answer": "C"},`

	tests := []struct {
		name string
		buf  string
		want []string
	}{
		{"header only", `[{"name": "Reasoning", "questions": [`, nil},
		{"three finished", head, []string{"Q1", "Q2", "Q3"}},
		{"fourth in progress", head + `{"question_text": "Q4", "ans`, []string{"Q1", "Q2", "Q3"}},
		{"section closed", head + `{"question_text": "Q4", "answer": "D"}]}`, []string{"Q1", "Q2", "Q3", "Q4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.buf)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d records, got %d: %+v", len(tt.want), len(got), got)
			}
			for i, w := range tt.want {
				if got[i].Text != w || got[i].Section != "Reasoning" {
					t.Errorf("record %d = %q in %q, want %q in Reasoning", i, got[i].Text, got[i].Section, w)
				}
			}
		})
	}

	t.Run("open standalone question", func(t *testing.T) {
		got := Extract(`[{"question": "Q1"}, {"question": "Q2", "options": ["A", "B"`)
		if len(got) != 1 || got[0].Text != "Q1" {
			t.Errorf("unexpected records %+v", got)
		}
	})

	t.Run("label only from earlier members", func(t *testing.T) {
		got := Extract(`[{"questions": [{"question": "L1"}], "name": "Late"}]`)
		if len(got) != 1 || got[0].Section != "" {
			t.Errorf("unexpected records %+v", got)
		}
	})
}

func TestSanitizeControlCharacters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"newline", "{\"a\": \"x\ny\"}", `{"a": "x\ny"}`},
		{"tab", "{\"a\": \"x\ty\"}", `{"a": "x\ty"}`},
		{"bell", "{\"a\": \"x\x07y\"}", `{"a": "x\u0007y"}`},
		{"unit separator", "{\"a\": \"x\x1fy\"}", `{"a": "x\u001fy"}`},
		{"outside strings", "{\"a\":\n1}", "{\"a\":\n1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	got := Extract("[{\"question\": \"Form\x0cfeed\", \"answer\": \"a\"}]")
	if len(got) != 1 || got[0].Text != "Form\ffeed" {
		t.Errorf("unexpected records %+v", got)
	}
}

func TestExtractPrefixGrowth(t *testing.T) {
	inputs := map[string]string{
		"sample": sampleStream,
		"one section": `[{"name": "Reasoning", "questions": [` +
			`{"question_text": "Q1", "options": ["A", "B"], "answer": "A"},` +
			`{"question_text": "Q2 \"quoted\"", "options": ["C", "D"], "answer": "D",},` +
			`{"question_text": "Q3", "answer": "x"}]}]`,
		"label after questions": `[{"questions": [{"question": "L1"}, {"question": "L2"}], "name": "Late"}]`,
		"flat": `[{"question":"Q1","options":["A","B"],"answer":"A"},` +
			`{"question":"Q2","options":["C","D"],"answer":"D",},` +
			`{"question":"Q3 {tricky}","answer":"x"}]`,
	}

	for name, full := range inputs {
		t.Run(name, func(t *testing.T) {
			prev := Extract("")
			for i := 1; i <= len(full); i++ {
				cur := Extract(full[:i])
				if len(cur) < len(prev) {
					t.Fatalf("prefix %d: list shrank from %d to %d", i, len(prev), len(cur))
				}
				if !reflect.DeepEqual(cur[:len(prev)], prev) {
					t.Fatalf("prefix %d: earlier records changed\nprev: %+v\ncur:  %+v", i, prev, cur[:len(prev)])
				}
				prev = cur
			}
			if !reflect.DeepEqual(prev, Extract(full)) {
				t.Error("final prefix differs from full extraction")
			}
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	a := Extract(sampleStream)
	b := Extract(strings.Clone(sampleStream))
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated extraction of the same buffer differs")
	}
}
