package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CollectionType names one of the parallel media domains a user tracks.
type CollectionType string

const (
	CollectionGames  CollectionType = "games"
	CollectionAnimes CollectionType = "animes"
)

// CollectionTypes lists every supported type.
var CollectionTypes = []CollectionType{CollectionGames, CollectionAnimes}

var ErrUnknownCollection = errors.New("unknown collection type")

// ParseCollectionType accepts the route form of a collection type.
func ParseCollectionType(raw string) (CollectionType, error) {
	switch CollectionType(strings.ToLower(strings.TrimSpace(raw))) {
	case CollectionGames:
		return CollectionGames, nil
	case CollectionAnimes:
		return CollectionAnimes, nil
	}
	return "", ErrUnknownCollection
}

// CollectionItem is one tracked game or anime entry.
//
// Documents are schemaless beyond these fields; unknown keys found while
// decoding are kept in Extra and written back out unchanged.
type CollectionItem struct {
	ID              string    `json:"id,omitempty"`
	ExternalID      int64     `json:"externalId,omitempty"`
	Name            string    `json:"name"`
	Image           string    `json:"image,omitempty"`
	ReleasedYear    int       `json:"releasedYear,omitempty"`
	CatalogRating   float64   `json:"catalogRating,omitempty"`
	YearPlayed      int       `json:"yearPlayed,omitempty"`
	StartDate       string    `json:"startDate,omitempty"`
	EndDate         string    `json:"endDate,omitempty"`
	HoursPlayed     float64   `json:"hoursPlayed,omitempty"`
	ChaptersWatched int       `json:"chaptersWatched,omitempty"`
	PersonalRating  float64   `json:"personalRating,omitempty"`
	PlayerNotes     string    `json:"playerNotes,omitempty"`
	Order           *int64    `json:"order,omitempty"`
	InWishlist      bool      `json:"inWishlist,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Extra map[string]json.RawMessage `json:"-"`
}

// itemFields lists every key owned by CollectionItem, including the legacy
// aliases consumed on decode.
var itemFields = map[string]bool{
	"id": true, "externalId": true, "name": true, "image": true,
	"releasedYear": true, "catalogRating": true, "yearPlayed": true,
	"startDate": true, "endDate": true, "hoursPlayed": true,
	"chaptersWatched": true, "personalRating": true, "playerNotes": true,
	"order": true, "inWishlist": true, "createdAt": true, "updatedAt": true,
	"rawgId": true, "anilistId": true, "released": true, "rating": true,
}

type collectionItemAlias CollectionItem

// legacyItem captures the keys written by older exports.
type legacyItem struct {
	RawgID    *json.Number    `json:"rawgId"`
	AnilistID *json.Number    `json:"anilistId"`
	Released  json.RawMessage `json:"released"`
	Rating    *float64        `json:"rating"`
}

// UnmarshalJSON decodes the document, mapping legacy keys and keeping unknown ones.
func (c *CollectionItem) UnmarshalJSON(data []byte) error {
	var alias collectionItemAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var legacy legacyItem
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	if _, ok := raw["externalId"]; !ok {
		for _, n := range []*json.Number{legacy.RawgID, legacy.AnilistID} {
			if n == nil {
				continue
			}
			if v, err := n.Int64(); err == nil {
				alias.ExternalID = v
				break
			}
		}
	}
	if _, ok := raw["releasedYear"]; !ok && len(legacy.Released) > 0 {
		alias.ReleasedYear = parseLegacyYear(legacy.Released)
	}
	if _, ok := raw["personalRating"]; !ok && legacy.Rating != nil {
		alias.PersonalRating = *legacy.Rating
	}

	alias.Extra = nil
	for key, value := range raw {
		if itemFields[key] {
			continue
		}
		if alias.Extra == nil {
			alias.Extra = make(map[string]json.RawMessage)
		}
		alias.Extra[key] = append(json.RawMessage(nil), value...)
	}

	*c = CollectionItem(alias)
	return nil
}

// MarshalJSON encodes the document, merging preserved unknown keys.
func (c CollectionItem) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(collectionItemAlias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(c.Extra))
	for key := range c.Extra {
		if !itemFields[key] {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return base, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, key := range keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(c.Extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a deep copy safe to hand to another owner.
func (c CollectionItem) Clone() CollectionItem {
	out := c
	if c.Order != nil {
		order := *c.Order
		out.Order = &order
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// HasOrder reports whether the manual sort key is defined.
func (c CollectionItem) HasOrder() bool {
	return c.Order != nil
}

func parseLegacyYear(raw json.RawMessage) int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return year
}

// ItemPatch is a partial update; nil fields are left untouched.
type ItemPatch struct {
	YearPlayed      *int     `json:"yearPlayed,omitempty"`
	StartDate       *string  `json:"startDate,omitempty"`
	EndDate         *string  `json:"endDate,omitempty"`
	HoursPlayed     *float64 `json:"hoursPlayed,omitempty"`
	ChaptersWatched *int     `json:"chaptersWatched,omitempty"`
	PersonalRating  *float64 `json:"personalRating,omitempty"`
	PlayerNotes     *string  `json:"playerNotes,omitempty"`
	Order           *int64   `json:"order,omitempty"`
	InWishlist      *bool    `json:"inWishlist,omitempty"`

	// UpdatedAt is owned by the sync adapter; callers leave it zero.
	UpdatedAt time.Time `json:"-"`
}

// IsEmpty reports whether the patch changes no user field.
func (p ItemPatch) IsEmpty() bool {
	return p.YearPlayed == nil && p.StartDate == nil && p.EndDate == nil &&
		p.HoursPlayed == nil && p.ChaptersWatched == nil && p.PersonalRating == nil &&
		p.PlayerNotes == nil && p.Order == nil && p.InWishlist == nil
}

// Apply writes the set fields onto item.
func (p ItemPatch) Apply(item *CollectionItem) {
	if p.YearPlayed != nil {
		item.YearPlayed = *p.YearPlayed
	}
	if p.StartDate != nil {
		item.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		item.EndDate = *p.EndDate
	}
	if p.HoursPlayed != nil {
		item.HoursPlayed = *p.HoursPlayed
	}
	if p.ChaptersWatched != nil {
		item.ChaptersWatched = *p.ChaptersWatched
	}
	if p.PersonalRating != nil {
		item.PersonalRating = *p.PersonalRating
	}
	if p.PlayerNotes != nil {
		item.PlayerNotes = *p.PlayerNotes
	}
	if p.Order != nil {
		order := *p.Order
		item.Order = &order
	}
	if p.InWishlist != nil {
		item.InWishlist = *p.InWishlist
	}
	if !p.UpdatedAt.IsZero() {
		item.UpdatedAt = p.UpdatedAt
	}
}
