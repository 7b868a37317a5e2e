// Package analytics derives usage statistics from a task snapshot.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

const DateLayout = "2006-01-02"

// Compute aggregates tasks. Activity days are calendar dates of created_at in loc
// (time.Local when nil).
func Compute(tasks []model.Task, loc *time.Location) model.Analytics {
	if loc == nil {
		loc = time.Local
	}

	a := model.Analytics{
		TotalTasks:   len(tasks),
		UserActivity: make([]model.DailyCount, 0),
	}

	var (
		totalMinutes float64
		timed        int
		perDay       = make(map[string]int)
	)
	for _, t := range tasks {
		if t.Status == model.StatusCompleted {
			a.CompletedTasks++
		}
		if t.IsAIGenerated {
			a.AIGeneratedTasks++
		}
		if t.CompletedAt != nil && !t.CreatedAt.IsZero() {
			totalMinutes += float64(t.CompletedAt.Sub(t.CreatedAt).Milliseconds()) / 60000
			timed++
		}
		perDay[t.CreatedAt.In(loc).Format(DateLayout)]++
	}

	if timed > 0 {
		avg := totalMinutes / float64(timed)
		a.AverageCompletionTime = &avg
	}

	for date, count := range perDay {
		a.UserActivity = append(a.UserActivity, model.DailyCount{Date: date, Count: count})
	}
	sort.Slice(a.UserActivity, func(i, j int) bool {
		return a.UserActivity[i].Date < a.UserActivity[j].Date
	})
	return a
}

// CompletionRate is the rounded share of completed tasks in percent.
func CompletionRate(a model.Analytics) int {
	return percent(a.CompletedTasks, a.TotalTasks)
}

// AIUsageRate is the rounded share of AI-generated tasks in percent.
func AIUsageRate(a model.Analytics) int {
	return percent(a.AIGeneratedTasks, a.TotalTasks)
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
