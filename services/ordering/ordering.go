// Package ordering arranges collection items into year buckets and handles
// drag reordering, both the persisted swap and the local-only timeline.
package ordering

import (
	"sort"

	"playlog/models"
)

// UnknownYear is the bucket key for items without yearPlayed.
const UnknownYear = 0

// Bucket holds the items sharing one yearPlayed value.
type Bucket struct {
	Year  int                     `json:"year"`
	Items []models.CollectionItem `json:"items"`
}

// Unknown reports whether this is the unknown-year bucket.
func (b Bucket) Unknown() bool {
	return b.Year == UnknownYear
}

// SortBucket returns items ordered by the manual sort key. Items with an
// order come first, ascending; items without one keep their relative order.
func SortBucket(items []models.CollectionItem) []models.CollectionItem {
	out := make([]models.CollectionItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.HasOrder() && b.HasOrder():
			return *a.Order < *b.Order
		default:
			return a.HasOrder() && !b.HasOrder()
		}
	})
	return out
}

// GroupByYear buckets items by yearPlayed, newest year first. The unknown-year
// bucket always comes last. Empty buckets are never returned.
func GroupByYear(items []models.CollectionItem) []Bucket {
	return groupByYear(items, SortBucket)
}

func groupByYear(items []models.CollectionItem, arrange func([]models.CollectionItem) []models.CollectionItem) []Bucket {
	byYear := make(map[int][]models.CollectionItem)
	for _, item := range items {
		year := item.YearPlayed
		if year < 0 {
			year = UnknownYear
		}
		byYear[year] = append(byYear[year], item)
	}

	buckets := make([]Bucket, 0, len(byYear))
	for year, members := range byYear {
		buckets = append(buckets, Bucket{Year: year, Items: arrange(members)})
	}
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i].Year, buckets[j].Year
		if a == UnknownYear || b == UnknownYear {
			return b == UnknownYear && a != UnknownYear
		}
		return a > b
	})
	return buckets
}

// Library groups the items that are not on the wishlist.
func Library(items []models.CollectionItem) []Bucket {
	return GroupByYear(Active(items))
}

// Wishlist returns the wishlist items in manual order.
func Wishlist(items []models.CollectionItem) []models.CollectionItem {
	var wished []models.CollectionItem
	for _, item := range items {
		if item.InWishlist {
			wished = append(wished, item)
		}
	}
	return SortBucket(wished)
}

// Active returns the items that are not on the wishlist, in input order.
func Active(items []models.CollectionItem) []models.CollectionItem {
	active := make([]models.CollectionItem, 0, len(items))
	for _, item := range items {
		if !item.InWishlist {
			active = append(active, item)
		}
	}
	return active
}

func identity(items []models.CollectionItem) []models.CollectionItem {
	return items
}
