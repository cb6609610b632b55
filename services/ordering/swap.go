package ordering

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"playlog/models"
)

var ErrItemNotFound = errors.New("item not in collection")

// targetOffset separates the fallback orders of the two swapped items.
const targetOffset = 1000 * time.Millisecond

// Updater persists a partial update; satisfied by *collection.Adapter.
//
//go:generate mockgen -destination=mock_updater_test.go -package=ordering_test playlog/services/ordering Updater
type Updater interface {
	Update(ctx context.Context, id string, patch models.ItemPatch) error
}

// SwapError is returned when a swap could not be fully written. Partial is
// set when the first update landed and the second did not.
type SwapError struct {
	Partial bool
	Err     error
}

func (e *SwapError) Error() string {
	if e.Partial {
		return fmt.Sprintf("order swap only partially saved: %v", e.Err)
	}
	return fmt.Sprintf("order swap failed: %v", e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// Swap exchanges the order of dragged and target with two separate updates.
// Items in different year buckets, a wishlist item paired with a library
// item, or the same item twice are left alone and no update is issued. The returned bool reports whether updates were issued.
func Swap(ctx context.Context, updater Updater, dragged, target models.CollectionItem, now time.Time) (bool, error) {
	if dragged.ID == target.ID || dragged.YearPlayed != target.YearPlayed || dragged.InWishlist != target.InWishlist {
		return false, nil
	}

	draggedOrder := now.UnixMilli()
	if dragged.Order != nil {
		draggedOrder = *dragged.Order
	}
	targetOrder := now.Add(targetOffset).UnixMilli()
	if target.Order != nil {
		targetOrder = *target.Order
	}

	if err := updater.Update(ctx, dragged.ID, models.ItemPatch{Order: &targetOrder}); err != nil {
		return true, &SwapError{Err: err}
	}
	if err := updater.Update(ctx, target.ID, models.ItemPatch{Order: &draggedOrder}); err != nil {
		log.Printf("[ordering] swap %s/%s left partial: %v", dragged.ID, target.ID, err)
		return true, &SwapError{Partial: true, Err: err}
	}
	return true, nil
}

// SwapByID looks both ids up in items and calls Swap.
func SwapByID(ctx context.Context, updater Updater, items []models.CollectionItem, draggedID, targetID string, now time.Time) (bool, error) {
	dragged, ok := find(items, draggedID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, draggedID)
	}
	target, ok := find(items, targetID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, targetID)
	}
	return Swap(ctx, updater, dragged, target, now)
}

func find(items []models.CollectionItem, id string) (models.CollectionItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.CollectionItem{}, false
}
