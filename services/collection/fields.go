package collection

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"playlog/models"
)

// FieldKind is the semantic type of an editable field.
type FieldKind string

const (
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindRating FieldKind = "rating"
	KindDate   FieldKind = "date"
	KindText   FieldKind = "text"
	KindBool   FieldKind = "bool"
)

const (
	minYearPlayed = 1980
	dateLayout    = "2006-01-02"
)

// FieldError describes one rejected form field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var commonFields = map[string]FieldKind{
	"yearPlayed":     KindInt,
	"startDate":      KindDate,
	"endDate":        KindDate,
	"personalRating": KindRating,
	"playerNotes":    KindText,
	"order":          KindInt,
	"inWishlist":     KindBool,
}

var typeFields = map[models.CollectionType]map[string]FieldKind{
	models.CollectionGames:  {"hoursPlayed": KindFloat},
	models.CollectionAnimes: {"chaptersWatched": KindInt},
}

// FieldSchema returns the editable fields of a collection type.
func FieldSchema(collectionType models.CollectionType) map[string]FieldKind {
	schema := make(map[string]FieldKind, len(commonFields)+1)
	for name, kind := range commonFields {
		schema[name] = kind
	}
	for name, kind := range typeFields[collectionType] {
		schema[name] = kind
	}
	return schema
}

// ParsePatch validates form input against the schema of collectionType.
func ParsePatch(collectionType models.CollectionType, fields map[string]any) (models.ItemPatch, error) {
	return ParsePatchAt(collectionType, fields, time.Now())
}

// ParsePatchAt is ParsePatch with an explicit clock for the yearPlayed upper bound.
// Empty strings clear a field.
func ParsePatchAt(collectionType models.CollectionType, fields map[string]any, now time.Time) (models.ItemPatch, error) {
	schema := FieldSchema(collectionType)
	var patch models.ItemPatch

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		kind, ok := schema[name]
		if !ok {
			if _, other := FieldSchema(otherType(collectionType))[name]; other {
				return models.ItemPatch{}, &FieldError{Field: name, Reason: fmt.Sprintf("not available for %s", collectionType)}
			}
			return models.ItemPatch{}, &FieldError{Field: name, Reason: "unknown field"}
		}

		switch kind {
		case KindText:
			s, err := asString(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			patch.PlayerNotes = &s

		case KindDate:
			s, err := asString(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			s = strings.TrimSpace(s)
			if s != "" {
				if _, err := time.Parse(dateLayout, s); err != nil {
					return models.ItemPatch{}, &FieldError{Field: name, Reason: "expected YYYY-MM-DD"}
				}
			}
			if name == "startDate" {
				patch.StartDate = &s
			} else {
				patch.EndDate = &s
			}

		case KindBool:
			b, err := asBool(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			patch.InWishlist = &b

		case KindRating:
			f, empty, err := asNumber(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			if !empty && (f < 1 || f > 10 || !isHalfStep(f)) {
				return models.ItemPatch{}, &FieldError{Field: name, Reason: "must be between 1 and 10 in half steps"}
			}
			patch.PersonalRating = &f

		case KindFloat:
			f, _, err := asNumber(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			if f < 0 || !isHalfStep(f) {
				return models.ItemPatch{}, &FieldError{Field: name, Reason: "must be zero or more in half steps"}
			}
			patch.HoursPlayed = &f

		case KindInt:
			f, empty, err := asNumber(name, value)
			if err != nil {
				return models.ItemPatch{}, err
			}
			if f != math.Trunc(f) {
				return models.ItemPatch{}, &FieldError{Field: name, Reason: "must be a whole number"}
			}
			switch name {
			case "yearPlayed":
				if !empty && (f < minYearPlayed || f > float64(now.Year())) {
					return models.ItemPatch{}, &FieldError{Field: name, Reason: fmt.Sprintf("must be between %d and %d", minYearPlayed, now.Year())}
				}
				year := int(f)
				patch.YearPlayed = &year
			case "chaptersWatched":
				if f < 0 || f > math.MaxInt32 {
					return models.ItemPatch{}, &FieldError{Field: name, Reason: fmt.Sprintf("must be between 0 and %d", math.MaxInt32)}
				}
				chapters := int(f)
				patch.ChaptersWatched = &chapters
			case "order":
				if empty {
					return models.ItemPatch{}, &FieldError{Field: name, Reason: "cannot be cleared"}
				}
				// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
				if f < math.MinInt64 || f >= math.MaxInt64 {
					return models.ItemPatch{}, &FieldError{Field: name, Reason: "out of range"}
				}
				order := int64(f)
				patch.Order = &order
			}
		}
	}
	return patch, nil
}

func otherType(t models.CollectionType) models.CollectionType {
	if t == models.CollectionAnimes {
		return models.CollectionGames
	}
	return models.CollectionAnimes
}

func isHalfStep(f float64) bool {
	return f*2 == math.Trunc(f*2)
}

func asString(name string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", &FieldError{Field: name, Reason: "expected text"}
	}
}

func asBool(name string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &FieldError{Field: name, Reason: "expected true or false"}
		}
		return b, nil
	default:
		return false, &FieldError{Field: name, Reason: "expected true or false"}
	}
}

// asNumber accepts JSON numbers and numeric strings; empty means the field is cleared.
func asNumber(name string, value any) (float64, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, true, nil
	case float64:
		return v, false, nil
	case int:
		return float64(v), false, nil
	case int64:
		return float64(v), false, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, &FieldError{Field: name, Reason: "expected a number"}
		}
		return f, false, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, &FieldError{Field: name, Reason: "expected a number"}
		}
		return f, false, nil
	default:
		return 0, false, &FieldError{Field: name, Reason: "expected a number"}
	}
}

// NewEntry builds the payload for adding candidate to the collection.
// The entry goes to the end of its bucket and defaults to the current year.
func NewEntry(candidate models.Candidate, patch models.ItemPatch, now time.Time) models.CollectionItem {
	order := now.UnixMilli()
	item := models.CollectionItem{
		ExternalID:    candidate.ID,
		Name:          candidate.Name,
		Image:         candidate.Image,
		ReleasedYear:  candidate.ReleasedYear,
		CatalogRating: candidate.Rating,
		YearPlayed:    now.Year(),
		Order:         &order,
	}
	patch.UpdatedAt = time.Time{}
	patch.Apply(&item)
	return item
}

// NewWishlistEntry builds the payload for saving candidate to the wishlist.
func NewWishlistEntry(candidate models.Candidate, now time.Time) models.CollectionItem {
	inWishlist := true
	notes := "Added from wishlist"
	return NewEntry(candidate, models.ItemPatch{InWishlist: &inWishlist, PlayerNotes: &notes}, now)
}
