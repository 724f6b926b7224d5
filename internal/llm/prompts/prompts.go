package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/mocktest/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var instructionTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)

const (
	maxTopicRunes   = 500
	defaultQuestion = 20
)

var (
	loadOnce     sync.Once
	loadErr      error
	systemPrompt string
	userTemplate *template.Template
)

// Load parses the embedded prompt templates. It is safe to call more than
// once.
func Load() error {
	loadOnce.Do(func() {
		sys, err := templateFS.ReadFile("templates/generate_system.txt")
		if err != nil {
			loadErr = fmt.Errorf("read system prompt: %w", err)
			return
		}
		systemPrompt = string(sys)

		user, err := templateFS.ReadFile("templates/generate_user.txt")
		if err != nil {
			loadErr = fmt.Errorf("read user prompt: %w", err)
			return
		}
		userTemplate, err = template.New("generate").
			Funcs(template.FuncMap{"join": strings.Join}).
			Parse(string(user))
		if err != nil {
			loadErr = fmt.Errorf("parse user prompt: %w", err)
		}
	})
	return loadErr
}

// System returns the system prompt describing the expected output format.
func System() (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	return systemPrompt, nil
}

// BuildGenerate renders the user prompt for req.
func BuildGenerate(req model.GenerationRequest) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	topic := sanitizeTopic(req.Topic)
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data := req
	data.Topic = topic
	if data.TotalQuestions <= 0 {
		data.TotalQuestions = defaultQuestion
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeTopic(topic string) string {
	topic = instructionTagRegex.ReplaceAllString(topic, "")
	topic = strings.TrimSpace(topic)
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes])
	}
	return topic
}
