package suggest

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

const day = 24 * time.Hour

type template struct {
	title       string
	description string
	priority    model.Priority
	dueIn       time.Duration
	confidence  float64
	reasoning   string
}

var aiTemplates = []template{
	{
		title:       "Review project documentation",
		description: "Ensure all documentation is up-to-date and comprehensive",
		priority:    model.PriorityMedium,
		dueIn:       3 * day,
		confidence:  0.92,
		reasoning:   "Based on your work patterns and recent project tasks",
	},
	{
		title:       "Prepare weekly progress report",
		description: "Compile key metrics and achievements from the past week",
		priority:    model.PriorityHigh,
		dueIn:       1 * day,
		confidence:  0.89,
		reasoning:   "Regular weekly task based on your calendar patterns",
	},
	{
		title:       "Research new productivity tools",
		description: "Explore tools that could improve team workflow and efficiency",
		priority:    model.PriorityLow,
		dueIn:       7 * day,
		confidence:  0.78,
		reasoning:   "Based on your interest in productivity improvements",
	},
}

// AITaskTemplates returns the generated tasks for userID, due relative to now.
func AITaskTemplates(userID string, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, len(aiTemplates))
	for _, tpl := range aiTemplates {
		desc := tpl.description
		due := now.Add(tpl.dueIn)
		tasks = append(tasks, model.Task{
			UserID:        userID,
			Title:         tpl.title,
			Description:   &desc,
			Priority:      tpl.priority,
			Status:        model.StatusTodo,
			DueDate:       &due,
			IsAIGenerated: true,
			AIMetadata: map[string]any{
				"confidence": tpl.confidence,
				"reasoning":  tpl.reasoning,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return tasks
}

var transcripts = []string{
	"Add a task to prepare presentation for tomorrow's meeting",
	"Create a new high priority task to review the quarterly report",
	"Remind me to call John about the project at 3pm",
	"Add a task to send the invoice to the client by Friday",
}

// Transcripts returns every phrase the mock transcriber can produce.
func Transcripts() []string {
	return append([]string(nil), transcripts...)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// MockTranscriber ignores the audio and returns one of the canned phrases.
type MockTranscriber struct {
	pick func(n int) int
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{pick: rand.IntN}
}

func (t *MockTranscriber) Transcribe(ctx context.Context, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return transcripts[t.pick(len(transcripts))], nil
}
