// Package studyaid generates study material — chat answers, quizzes, and
// flashcards — from a user's processed documents. Chat grounds the model in
// chunks retrieved for the question; quizzes and flashcards instead use
// representative sampling so the material covers the whole document rather
// than one topic.
package studyaid

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/studyowl/studyowl-go/internal/budget"
	"github.com/studyowl/studyowl-go/internal/store"
	"github.com/studyowl/studyowl-go/internal/vector"
)

// Generation defaults.
const (
	// DefaultMatchCount is how many chunks ground a chat answer.
	DefaultMatchCount = 5
	// DefaultSampleSize is how many representative chunks feed a quiz or
	// flashcard deck.
	DefaultSampleSize = 15
	// DefaultQuestionCount is the quiz length when the caller does not choose.
	DefaultQuestionCount = 10
	// DefaultFlashcardCount is the deck size when the caller does not choose.
	DefaultFlashcardCount = 15
)

// Turn is one prior exchange in a chat conversation.
type Turn struct {
	// Role is "user" or "assistant" (also accepted: "model").
	Role string `json:"role"`
	// Text is the turn's content.
	Text string `json:"text"`
}

// Source is one chunk that grounded a chat answer.
type Source struct {
	// Content is the chunk's raw text.
	Content string `json:"content"`
}

// ChatResponse is the answer to a chat question plus its grounding chunks.
type ChatResponse struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Quiz is a generated multiple-choice quiz.
type Quiz struct {
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

// Flashcard is one front/back study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// retriever is the slice of the retrieval layer the generator needs.
type retriever interface {
	TopK(ctx context.Context, query string, documentIDs []string, matchCount int) ([]vector.Point, error)
	RepresentativeSample(ctx context.Context, documentIDs []string, target int, rng *rand.Rand) ([]store.Chunk, error)
}

// Generator produces study material from retrieved chunk context.
type Generator struct {
	model      model.ToolCallingChatModel
	retriever  retriever
	matchCount int
	sampleSize int
	rng        *rand.Rand
}

// Config tunes a Generator. Zero values fall back to the defaults above.
type Config struct {
	// MatchCount is how many chunks ground each chat answer.
	MatchCount int
	// SampleSize is how many representative chunks feed quiz and flashcard
	// generation.
	SampleSize int
	// Rand seeds the representative sampler. Nil means unseeded behavior is
	// fine; tests pass a fixed seed.
	Rand *rand.Rand
}

// New constructs a Generator around a chat model and a retriever.
func New(chatModel model.ToolCallingChatModel, r retriever, cfg Config) *Generator {
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = DefaultMatchCount
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec // sampling diversity, not crypto
	}
	return &Generator{
		model:      chatModel,
		retriever:  r,
		matchCount: cfg.MatchCount,
		sampleSize: cfg.SampleSize,
		rng:        rng,
	}
}

// Chat answers a question about the given documents, grounded in the chunks
// most relevant to it. Prior turns are replayed so follow-up questions keep
// their context.
func (g *Generator) Chat(ctx context.Context, documentIDs []string, history []Turn, message string) (*ChatResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("studyaid: empty message")
	}

	points, err := g.retriever.TopK(ctx, message, documentIDs, g.matchCount)
	if err != nil {
		return nil, fmt.Errorf("studyaid: retrieve context: %w", err)
	}

	contents := make([]string, 0, len(points))
	sources := make([]Source, 0, len(points))
	for _, p := range points {
		contents = append(contents, p.Content)
		sources = append(sources, Source{Content: p.Content})
	}

	turns := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch strings.ToLower(turn.Role) {
		case "assistant", "model":
			turns = append(turns, schema.AssistantMessage(turn.Text, nil))
		default:
			turns = append(turns, schema.UserMessage(turn.Text))
		}
	}

	// Drop the oldest turns if the conversation no longer fits the context
	// budget. The system prompt and the current question are never trimmed.
	fixed := []*schema.Message{
		schema.SystemMessage(chatSystemPrompt(contents)),
		schema.UserMessage(message),
	}
	turns = budget.TrimHistory(fixed, turns, budget.DefaultMaxContextTokens)

	messages := make([]*schema.Message, 0, len(turns)+2)
	messages = append(messages, fixed[0])
	messages = append(messages, turns...)
	messages = append(messages, fixed[1])

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("studyaid: generate answer: %w", err)
	}

	return &ChatResponse{Text: resp.Content, Sources: sources}, nil
}

// Quiz generates a multiple-choice quiz covering the given documents.
func (g *Generator) Quiz(ctx context.Context, documentIDs []string, questionCount int) (*Quiz, error) {
	if questionCount <= 0 {
		questionCount = DefaultQuestionCount
	}

	chunks, err := g.retriever.RepresentativeSample(ctx, documentIDs, g.sampleSize, g.rng)
	if err != nil {
		return nil, fmt.Errorf("studyaid: sample chunks: %w", err)
	}

	resp, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(quizSystemPrompt),
		schema.UserMessage(quizUserPrompt(chunkTexts(chunks), questionCount)),
	})
	if err != nil {
		return nil, fmt.Errorf("studyaid: generate quiz: %w", err)
	}

	quiz, err := parseQuiz(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("studyaid: %w", err)
	}
	return quiz, nil
}

// Flashcards generates a front/back card deck covering the given documents.
func (g *Generator) Flashcards(ctx context.Context, documentIDs []string, count int) ([]Flashcard, error) {
	if count <= 0 {
		count = DefaultFlashcardCount
	}

	chunks, err := g.retriever.RepresentativeSample(ctx, documentIDs, g.sampleSize, g.rng)
	if err != nil {
		return nil, fmt.Errorf("studyaid: sample chunks: %w", err)
	}

	resp, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(flashcardSystemPrompt),
		schema.UserMessage(flashcardUserPrompt(chunkTexts(chunks), count)),
	})
	if err != nil {
		return nil, fmt.Errorf("studyaid: generate flashcards: %w", err)
	}

	cards, err := parseFlashcards(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("studyaid: %w", err)
	}
	return cards, nil
}

// chunkTexts extracts the text of each chunk.
func chunkTexts(chunks []store.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}
