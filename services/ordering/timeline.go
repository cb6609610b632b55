package ordering

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"playlog/models"
)

// SortMode selects the timeline ordering.
type SortMode string

const (
	SortYearDesc   SortMode = "year-desc"
	SortYearAsc    SortMode = "year-asc"
	SortRatingDesc SortMode = "rating-desc"
	SortHoursDesc  SortMode = "hours-desc"
	SortDateAdded  SortMode = "date-added"

	SortCompletionDesc SortMode = "completion-desc"
	SortCompletionAsc  SortMode = "completion-asc"
	SortDifficulty     SortMode = "difficulty"
)

// Free-form document keys the timeline can filter and sort on.
const (
	completionKey = "completion"
	difficultyKey = "difficulty"
)

// ParseSortMode accepts a sort mode name; empty selects year-desc.
func ParseSortMode(raw string) (SortMode, error) {
	switch mode := SortMode(strings.TrimSpace(raw)); mode {
	case "":
		return SortYearDesc, nil
	case SortYearDesc, SortYearAsc, SortRatingDesc, SortHoursDesc, SortDateAdded,
		SortCompletionDesc, SortCompletionAsc, SortDifficulty:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", raw)
	}
}

// Filter narrows and orders the timeline. Zero bounds are open; an empty
// Difficulty matches every item.
type Filter struct {
	MinYear       int      `json:"minYear,omitempty"`
	MaxYear       int      `json:"maxYear,omitempty"`
	MinCompletion int      `json:"minCompletion,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Sort          SortMode `json:"sort"`
}

// Timeline is a read-oriented view whose drag reordering lives only in
// memory. Every Rebuild discards the local order.
type Timeline struct {
	mu     sync.RWMutex
	filter Filter
	source []models.CollectionItem
	view   []models.CollectionItem
}

func NewTimeline(filter Filter) *Timeline {
	if filter.Sort == "" {
		filter.Sort = SortYearDesc
	}
	return &Timeline{filter: filter}
}

// Rebuild replaces the source items and recomputes the view.
func (t *Timeline) Rebuild(items []models.CollectionItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = items
	t.view = arrange(items, t.filter)
}

// SetFilter changes the filter and recomputes the view from the last source.
func (t *Timeline) SetFilter(filter Filter) {
	if filter.Sort == "" {
		filter.Sort = SortYearDesc
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = filter
	t.view = arrange(t.source, filter)
}

func (t *Timeline) Filter() Filter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter
}

// Move takes draggedID out of the view and inserts it at targetID's former
// position. It reports whether the view changed.
func (t *Timeline) Move(draggedID, targetID string) bool {
	if draggedID == targetID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	from, to := -1, -1
	for i, item := range t.view {
		switch item.ID {
		case draggedID:
			from = i
		case targetID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return false
	}

	dragged := t.view[from]
	next := make([]models.CollectionItem, 0, len(t.view))
	next = append(next, t.view[:from]...)
	next = append(next, t.view[from+1:]...)
	next = append(next[:to], append([]models.CollectionItem{dragged}, next[to:]...)...)
	t.view = next
	return true
}

// Items returns the view in display order.
func (t *Timeline) Items() []models.CollectionItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.CollectionItem, len(t.view))
	copy(out, t.view)
	return out
}

// Buckets groups the view by year, keeping the view order inside each bucket.
func (t *Timeline) Buckets() []Bucket {
	return groupByYear(t.Items(), identity)
}

func arrange(items []models.CollectionItem, filter Filter) []models.CollectionItem {
	view := make([]models.CollectionItem, 0, len(items))
	for _, item := range Active(items) {
		if filter.MinYear > 0 && item.YearPlayed < filter.MinYear {
			continue
		}
		if filter.MaxYear > 0 && item.YearPlayed > filter.MaxYear {
			continue
		}
		if filter.MinCompletion > 0 && completion(item) < float64(filter.MinCompletion) {
			continue
		}
		if filter.Difficulty != "" && difficulty(item) != filter.Difficulty {
			continue
		}
		view = append(view, item)
	}

	var less func(a, b models.CollectionItem) bool
	switch filter.Sort {
	case SortYearAsc:
		less = func(a, b models.CollectionItem) bool { return a.YearPlayed < b.YearPlayed }
	case SortRatingDesc:
		less = func(a, b models.CollectionItem) bool { return a.PersonalRating > b.PersonalRating }
	case SortHoursDesc:
		less = func(a, b models.CollectionItem) bool { return a.HoursPlayed > b.HoursPlayed }
	case SortDateAdded:
		less = func(a, b models.CollectionItem) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortCompletionDesc:
		less = func(a, b models.CollectionItem) bool { return completion(a) > completion(b) }
	case SortCompletionAsc:
		less = func(a, b models.CollectionItem) bool { return completion(a) < completion(b) }
	case SortDifficulty:
		c := collate.New(language.Und, collate.IgnoreCase)
		less = func(a, b models.CollectionItem) bool { return c.CompareString(difficulty(a), difficulty(b)) < 0 }
	default:
		less = func(a, b models.CollectionItem) bool { return a.YearPlayed > b.YearPlayed }
	}
	sort.SliceStable(view, func(i, j int) bool { return less(view[i], view[j]) })
	return view
}

// completion reads the progress percentage; missing or unreadable values count as 0.
func completion(item models.CollectionItem) float64 {
	raw, ok := item.Extra[completionKey]
	if !ok {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n
		}
	}
	return 0
}

func difficulty(item models.CollectionItem) string {
	var s string
	if raw, ok := item.Extra[difficultyKey]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}
