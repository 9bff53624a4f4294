package studyaid

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON strips a markdown code fence from the model output when one is
// present. Models often wrap JSON in ```json fences despite instructions;
// tolerating that is cheaper than re-prompting.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return s
	}
	// Drop everything from the closing fence on.
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// parseQuiz decodes and validates a quiz from model output.
func parseQuiz(output string) (*Quiz, error) {
	var quiz Quiz
	if err := json.Unmarshal([]byte(extractJSON(output)), &quiz); err != nil {
		return nil, fmt.Errorf("parse quiz output: %w", err)
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("parse quiz output: no questions")
	}
	for i, q := range quiz.Questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			return nil, fmt.Errorf("parse quiz output: question %d has no text", i)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("parse quiz output: question %d has %d options, want 4", i, len(q.Options))
		}
		if !containsOption(q.Options, q.CorrectAnswer) {
			return nil, fmt.Errorf("parse quiz output: question %d correct answer is not among its options", i)
		}
	}
	return &quiz, nil
}

// parseFlashcards decodes and validates a flashcard deck from model output.
func parseFlashcards(output string) ([]Flashcard, error) {
	var cards []Flashcard
	if err := json.Unmarshal([]byte(extractJSON(output)), &cards); err != nil {
		return nil, fmt.Errorf("parse flashcard output: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("parse flashcard output: no cards")
	}
	for i, c := range cards {
		if strings.TrimSpace(c.Front) == "" || strings.TrimSpace(c.Back) == "" {
			return nil, fmt.Errorf("parse flashcard output: card %d has an empty side", i)
		}
	}
	return cards, nil
}

// containsOption reports whether answer matches one of the options exactly.
func containsOption(options []string, answer string) bool {
	for _, o := range options {
		if o == answer {
			return true
		}
	}
	return false
}
