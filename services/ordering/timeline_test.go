package ordering_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"playlog/models"
	"playlog/services/ordering"
)

func timelineItems() []models.CollectionItem {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.CollectionItem{
		{ID: "a", YearPlayed: 2020, PersonalRating: 7, HoursPlayed: 10, CreatedAt: base},
		{ID: "b", YearPlayed: 2023, PersonalRating: 9, HoursPlayed: 2, CreatedAt: base.Add(time.Hour)},
		{ID: "c", YearPlayed: 2021, PersonalRating: 8, HoursPlayed: 50, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "w", YearPlayed: 2022, InWishlist: true},
	}
}

func TestTimelineSortModes(t *testing.T) {
	cases := map[ordering.SortMode][]string{
		ordering.SortYearDesc:   {"b", "c", "a"},
		ordering.SortYearAsc:    {"a", "c", "b"},
		ordering.SortRatingDesc: {"b", "c", "a"},
		ordering.SortHoursDesc:  {"c", "a", "b"},
		ordering.SortDateAdded:  {"c", "b", "a"},
	}
	for mode, want := range cases {
		t.Run(string(mode), func(t *testing.T) {
			timeline := ordering.NewTimeline(ordering.Filter{Sort: mode})
			timeline.Rebuild(timelineItems())
			assert.Equal(t, want, ids(timeline.Items()))
		})
	}
}

func TestTimelineYearFilter(t *testing.T) {
	timeline := ordering.NewTimeline(ordering.Filter{MinYear: 2021, MaxYear: 2022})
	timeline.Rebuild(timelineItems())
	assert.Equal(t, []string{"c"}, ids(timeline.Items()), "wishlist items never appear")

	timeline.SetFilter(ordering.Filter{MinYear: 2021})
	assert.Equal(t, []string{"b", "c"}, ids(timeline.Items()))
	assert.Equal(t, ordering.SortYearDesc, timeline.Filter().Sort)
}

func TestTimelineMoveIsLocalOnly(t *testing.T) {
	// No store interaction is allowed; the mock fails the test on any call.
	ctrl := gomock.NewController(t)
	_ = NewMockUpdater(ctrl)

	timeline := ordering.NewTimeline(ordering.Filter{})
	timeline.Rebuild(timelineItems())
	require.Equal(t, []string{"b", "c", "a"}, ids(timeline.Items()))

	assert.True(t, timeline.Move("a", "b"))
	assert.Equal(t, []string{"a", "b", "c"}, ids(timeline.Items()))

	assert.True(t, timeline.Move("a", "c"))
	assert.Equal(t, []string{"b", "c", "a"}, ids(timeline.Items()))

	assert.False(t, timeline.Move("a", "a"))
	assert.False(t, timeline.Move("a", "missing"))
}

func TestTimelineRebuildDiscardsLocalOrder(t *testing.T) {
	timeline := ordering.NewTimeline(ordering.Filter{})
	timeline.Rebuild(timelineItems())
	timeline.Move("a", "b")

	timeline.Rebuild(timelineItems())
	assert.Equal(t, []string{"b", "c", "a"}, ids(timeline.Items()))
}

func TestTimelineBucketsKeepViewOrder(t *testing.T) {
	items := []models.CollectionItem{
		{ID: "x", YearPlayed: 2022},
		{ID: "y", YearPlayed: 2022},
		{ID: "z"},
	}
	timeline := ordering.NewTimeline(ordering.Filter{})
	timeline.Rebuild(items)
	timeline.Move("y", "x")

	buckets := timeline.Buckets()
	require.Len(t, buckets, 2)
	assert.Equal(t, []string{"y", "x"}, ids(buckets[0].Items))
	assert.True(t, buckets[1].Unknown())
}

func TestParseSortMode(t *testing.T) {
	mode, err := ordering.ParseSortMode("")
	require.NoError(t, err)
	assert.Equal(t, ordering.SortYearDesc, mode)

	mode, err = ordering.ParseSortMode("hours-desc")
	require.NoError(t, err)
	assert.Equal(t, ordering.SortHoursDesc, mode)

	mode, err = ordering.ParseSortMode("completion-asc")
	require.NoError(t, err)
	assert.Equal(t, ordering.SortCompletionAsc, mode)

	_, err = ordering.ParseSortMode("sideways")
	assert.Error(t, err)
}

func progressItems() []models.CollectionItem {
	extra := func(completion, difficulty string) map[string]json.RawMessage {
		out := map[string]json.RawMessage{}
		if completion != "" {
			out["completion"] = json.RawMessage(completion)
		}
		if difficulty != "" {
			out["difficulty"] = json.RawMessage(difficulty)
		}
		return out
	}
	return []models.CollectionItem{
		{ID: "p", YearPlayed: 2022, Extra: extra("100", `"normal"`)},
		{ID: "q", YearPlayed: 2022, Extra: extra(`"45"`, `"Hard"`)},
		{ID: "r", YearPlayed: 2023, Extra: extra("80", `"easy"`)},
		{ID: "s", YearPlayed: 2021},
	}
}

func TestTimelineCompletionAndDifficulty(t *testing.T) {
	cases := map[ordering.SortMode][]string{
		ordering.SortCompletionDesc: {"p", "r", "q", "s"},
		ordering.SortCompletionAsc:  {"s", "q", "r", "p"},
		ordering.SortDifficulty:     {"s", "r", "q", "p"},
	}
	for mode, want := range cases {
		t.Run(string(mode), func(t *testing.T) {
			timeline := ordering.NewTimeline(ordering.Filter{Sort: mode})
			timeline.Rebuild(progressItems())
			assert.Equal(t, want, ids(timeline.Items()))
		})
	}

	timeline := ordering.NewTimeline(ordering.Filter{MinCompletion: 50})
	timeline.Rebuild(progressItems())
	assert.Equal(t, []string{"r", "p"}, ids(timeline.Items()))

	timeline.SetFilter(ordering.Filter{Difficulty: "Hard"})
	assert.Equal(t, []string{"q"}, ids(timeline.Items()))
}
