package model

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Analytics struct {
	TotalTasks            int          `json:"total_tasks"`
	CompletedTasks        int          `json:"completed_tasks"`
	AIGeneratedTasks      int          `json:"ai_generated_tasks"`
	AverageCompletionTime *float64     `json:"average_completion_time"` // minutes
	UserActivity          []DailyCount `json:"user_activity"`
}
