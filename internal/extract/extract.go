// Package extract recovers question records from the partially written,
// possibly malformed JSON that a model streams while generating an exam.
//
// Extract is a pure function of the whole buffer. Calling it again on a
// longer buffer only ever appends records: every record recovered from a
// prefix reappears unchanged at the same index.
package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pavelanni/mocktest/internal/model"
)

const missingText = "No text available"

var (
	promptKeys  = []string{"question_text", "question"}
	answerKeys  = []string{"answer", "correct_answer", "correctAnswer"}
	sectionKeys = []string{"name", "section_name", "section", "subject", "title"}
	fenceCutter = strings.NewReplacer("```json", "", "```", "")
)

// mapped lists the source fields that are interpreted rather than kept in Extra.
var mapped = map[string]bool{
	"question_text":  true,
	"question":       true,
	"options":        true,
	"answer":         true,
	"correct_answer": true,
	"correctAnswer":  true,
	"explanation":    true,
}

// Extract returns the current best-effort list of questions in buf.
// It returns an empty list until the buffer contains an opening '['.
//
// Questions nested in a section that is still being written are returned
// as soon as each of them is complete.
func Extract(buf string) []model.QuestionRecord {
	start := strings.IndexByte(buf, '[')
	if start < 0 {
		return []model.QuestionRecord{}
	}
	body := fenceCutter.Replace(buf[start:])

	records := []model.QuestionRecord{}
	blocks, open := split(body)
	for i, block := range blocks {
		recs, ok := classify(block, true)
		if !ok {
			slog.Debug("skipping block without question fields", "block", i+1)
			continue
		}
		records = append(records, recs...)
	}
	if open != "" {
		recs, _ := classify(open, false)
		records = append(records, recs...)
	}
	return records
}

// classify turns one object block into zero or more records. It reports
// false when the block is neither a section nor a question. An incomplete
// block only yields the finished questions of its section.
func classify(block string, complete bool) ([]model.QuestionRecord, bool) {
	if recs, ok := section(block); ok {
		return recs, true
	}
	if !complete {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(Sanitize(block)), &obj); err != nil {
		slog.Debug("skipping unparsable block", "error", err)
		return nil, false
	}
	if firstString(obj, promptKeys) == "" {
		return nil, false
	}
	return []model.QuestionRecord{toRecord(obj)}, true
}

// section flattens the first member of block that holds nested questions.
// A "questions" array always qualifies; any other unmapped array does when
// one of its objects carries a prompt. The section label is read only from
// members written before that array, so a section reports the same label
// while it is open and after it closes.
func section(block string) ([]model.QuestionRecord, bool) {
	for _, f := range arrayFields(block) {
		if f.key != "questions" && mapped[f.key] {
			continue
		}
		children := decodeObjects(f.objects)
		if f.key != "questions" && !anyPrompt(children) {
			continue
		}

		label := headerLabel(block[:f.keyStart])
		recs := make([]model.QuestionRecord, 0, len(children))
		for _, child := range children {
			rec := toRecord(child)
			if rec.Text == "" {
				rec.Text = missingText
			}
			rec.Section = label
			recs = append(recs, rec)
		}
		return recs, true
	}
	return nil, false
}

// headerLabel reads the section label from the members preceding the
// question array. header runs from the opening brace up to that array's key.
func headerLabel(header string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(Sanitize(header+"}")), &obj); err != nil {
		return ""
	}
	return firstString(obj, sectionKeys)
}

// decodeObjects parses each object element, skipping any that stay
// malformed after sanitizing.
func decodeObjects(blocks []string) []map[string]json.RawMessage {
	children := make([]map[string]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		var child map[string]json.RawMessage
		if err := json.Unmarshal([]byte(Sanitize(b)), &child); err != nil || child == nil {
			continue
		}
		children = append(children, child)
	}
	return children
}

func anyPrompt(objs []map[string]json.RawMessage) bool {
	for _, o := range objs {
		if firstString(o, promptKeys) != "" {
			return true
		}
	}
	return false
}

func toRecord(obj map[string]json.RawMessage) model.QuestionRecord {
	rec := model.QuestionRecord{
		Text:        firstString(obj, promptKeys),
		Options:     options(obj["options"]),
		Answer:      firstScalar(obj, answerKeys),
		Explanation: firstString(obj, []string{"explanation"}),
	}
	for k, v := range obj {
		if mapped[k] {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]json.RawMessage)
		}
		rec.Extra[k] = v
	}
	return rec
}

// options decodes the options array. Non-string elements keep their JSON
// text; anything other than an array yields no options.
func options(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	opts := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			opts = append(opts, s)
			continue
		}
		opts = append(opts, string(item))
	}
	return opts
}

func firstString(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// firstScalar is firstString that also accepts numbers, which some models
// emit for option-index answers.
func firstScalar(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}
