package search

import (
	"errors"
	"fmt"

	"playlog/models"
)

var ErrDuplicate = errors.New("already in collection")

// DuplicateError names the existing entry for a catalog id.
type DuplicateError struct {
	Existing models.CollectionItem
}

func (e *DuplicateError) Error() string {
	where := "collection"
	if e.Existing.InWishlist {
		where = "wishlist"
	}
	return fmt.Sprintf("%q is already in your %s", e.Existing.Name, where)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// CheckDuplicate reports whether a candidate with externalID is already
// tracked. A zero id never matches.
func CheckDuplicate(items []models.CollectionItem, externalID int64) error {
	if externalID == 0 {
		return nil
	}
	for _, item := range items {
		if item.ExternalID == externalID {
			return &DuplicateError{Existing: item}
		}
	}
	return nil
}
