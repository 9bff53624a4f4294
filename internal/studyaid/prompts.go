package studyaid

import (
	"fmt"
	"strings"
)

// chatSystemPrompt frames the model as a study tutor restricted to the
// retrieved material.
func chatSystemPrompt(contexts []string) string {
	var sb strings.Builder
	sb.WriteString(`You are a study tutor. Answer the student's question using only the study material below.
If the material does not contain the answer, say so plainly instead of guessing.
Be concise and accurate.

## Study Material

`)
	for i, c := range contexts {
		fmt.Fprintf(&sb, "### Excerpt %d\n%s\n\n", i+1, c)
	}
	return sb.String()
}

const quizSystemPrompt = `You are a study tutor who writes multiple-choice quizzes.
Respond with a single JSON object and nothing else, using exactly this shape:

{
  "title": "<short quiz title>",
  "questions": [
    {
      "questionText": "<the question>",
      "options": ["<option 1>", "<option 2>", "<option 3>", "<option 4>"],
      "correctAnswer": "<the correct option, verbatim>"
    }
  ]
}

Rules:
- exactly 4 options per question
- correctAnswer must be copied verbatim from options
- every question must be answerable from the provided material alone`

// quizUserPrompt assembles the sampled material and the question budget.
func quizUserPrompt(contexts []string, questionCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a quiz with %d questions covering the following study material.\n\n", questionCount)
	for i, c := range contexts {
		fmt.Fprintf(&sb, "### Excerpt %d\n%s\n\n", i+1, c)
	}
	return sb.String()
}

const flashcardSystemPrompt = `You are a study tutor who writes flashcards.
Respond with a single JSON array and nothing else, using exactly this shape:

[
  {"front": "<term or question>", "back": "<definition or answer>"}
]

Rules:
- front is short: a term, name, or focused question
- back is the complete answer, one to three sentences
- every card must come from the provided material alone`

// flashcardUserPrompt assembles the sampled material and the deck size.
func flashcardUserPrompt(contexts []string, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write %d flashcards covering the following study material.\n\n", count)
	for i, c := range contexts {
		fmt.Fprintf(&sb, "### Excerpt %d\n%s\n\n", i+1, c)
	}
	return sb.String()
}
