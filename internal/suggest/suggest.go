// Package suggest holds the mock "AI" heuristics: suggestion lists, the
// due-date priority buckets and the canned generated tasks.
package suggest

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// MaxSuggestions caps the advanced mode output.
const MaxSuggestions = 5

// ParseMode accepts "basic" (also the empty string) and "advanced".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasic:
		return ModeBasic, nil
	case ModeAdvanced:
		return ModeAdvanced, nil
	}
	return "", fmt.Errorf("%w: unknown suggestion mode %q", model.ErrValidation, s)
}

// Suggester produces task title suggestions.
type Suggester interface {
	Suggest(ctx context.Context, existingTitles []string, mode Mode) ([]string, error)
}

// Prioritizer maps a due date to a priority.
type Prioritizer interface {
	EstimatePriority(due *time.Time) model.Priority
}

var basicSuggestions = []string{
	"Research latest AI development tools",
	"Create a portfolio showcasing AI projects",
	"Practice explaining technical concepts simply",
	"Prepare answers for common interview questions",
	"Set up GitHub profile with impressive projects",
}

var contextTriggers = []string{
	"create a demo for subhash",
	"show how i use ai tools effectively",
}

var contextualSuggestions = []string{
	"Prepare a live coding session demonstrating AI integration",
	"Create slides explaining your AI-assisted workflow",
	"Document your process with screenshots and annotations",
}

var careerSuggestions = []string{
	"Research companies using AI in their development workflow",
	"Identify specific AI tools that improve your productivity",
	"Learn prompt engineering techniques for better AI results",
	"Practice integrating OpenAI API into a real project",
}

// BasicSuggestions returns the fixed basic-mode list.
func BasicSuggestions() []string {
	return slices.Clone(basicSuggestions)
}

// AdvancedPool returns every string advanced mode can produce.
func AdvancedPool() []string {
	return slices.Concat(contextualSuggestions, careerSuggestions)
}

// Mock implements Suggester and Prioritizer without calling any model.
type Mock struct {
	shuffle func(n int, swap func(i, j int))
	now     func() time.Time
}

type Option func(*Mock)

// WithRand makes advanced-mode shuffling use r.
func WithRand(r *rand.Rand) Option {
	return func(m *Mock) { m.shuffle = r.Shuffle }
}

func WithClock(now func() time.Time) Option {
	return func(m *Mock) { m.now = now }
}

func NewMock(opts ...Option) *Mock {
	m := &Mock{
		shuffle: rand.Shuffle,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Suggest(ctx context.Context, existingTitles []string, mode Mode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case ModeBasic, "":
		return BasicSuggestions(), nil
	case ModeAdvanced:
	default:
		return nil, fmt.Errorf("%w: unknown suggestion mode %q", model.ErrValidation, mode)
	}

	var out []string
	if hasAny(existingTitles, contextTriggers) {
		out = append(out, contextualSuggestions...)
	}
	out = append(out, careerSuggestions...)

	m.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out, nil
}

func (m *Mock) EstimatePriority(due *time.Time) model.Priority {
	return EstimatePriority(due, m.now())
}

func hasAny(titles, wanted []string) bool {
	for _, t := range titles {
		if slices.Contains(wanted, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// EstimatePriority buckets whole days until due: <=1 urgent, <=3 high,
// <=7 medium, otherwise low. No due date means medium.
func EstimatePriority(due *time.Time, now time.Time) model.Priority {
	if due == nil {
		return model.PriorityMedium
	}
	days := math.Floor(due.Sub(now).Hours() / 24)
	switch {
	case days <= 1:
		return model.PriorityUrgent
	case days <= 3:
		return model.PriorityHigh
	case days <= 7:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// PrioritizationReason is stored in ai_metadata next to last_prioritized.
const PrioritizationReason = "Prioritized based on due date and task importance"

// PrioritizationMetadata merges the prioritization stamp into existing metadata.
func PrioritizationMetadata(existing map[string]any, now time.Time) map[string]any {
	md := make(map[string]any, len(existing)+2)
	for k, v := range existing {
		md[k] = v
	}
	md["last_prioritized"] = now.UTC().Format(time.RFC3339)
	md["prioritization_reason"] = PrioritizationReason
	return md
}
