package model

// FilterAll disables a filter dimension.
const FilterAll = "all"

// TaskFilter is the filter state owned by the task store.
type TaskFilter struct {
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	CategoryID  string `json:"category_id"`
	SearchQuery string `json:"search_query"`
}

func DefaultTaskFilter() TaskFilter {
	return TaskFilter{
		Status:     FilterAll,
		Priority:   FilterAll,
		CategoryID: FilterAll,
	}
}

// FilterPatch is merged into the current TaskFilter; nil fields are kept.
type FilterPatch struct {
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	SearchQuery *string `json:"search_query,omitempty"`
}

func (f TaskFilter) Merge(p FilterPatch) TaskFilter {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.CategoryID != nil {
		f.CategoryID = *p.CategoryID
	}
	if p.SearchQuery != nil {
		f.SearchQuery = *p.SearchQuery
	}
	return f
}

// TaskQuery is what the gateway receives: the filter plus the viewer.
type TaskQuery struct {
	UserID string
	Filter TaskFilter
}
