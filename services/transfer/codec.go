// Package transfer encodes collections to the exported JSON document and
// decodes such documents back into entries ready to be re-added.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"playlog/models"
)

var (
	ErrInvalidJSON   = errors.New("file is not valid JSON")
	ErrInvalidFormat = errors.New("file must contain a JSON array of items")
)

// storeFields are assigned by the store and regenerated on import.
var storeFields = []string{"id", "createdAt", "updatedAt"}

// Encode renders items as a pretty-printed JSON array.
func Encode(items []models.CollectionItem) ([]byte, error) {
	if items == nil {
		items = []models.CollectionItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return append(data, '\n'), nil
}

// FileName returns the download name, e.g. games-2024-05-01.json.
func FileName(collection models.CollectionType, now time.Time) string {
	return fmt.Sprintf("%s-%s.json", collection, now.Format("2006-01-02"))
}

// Decode parses an exported document. Every entry must be a JSON object;
// store-assigned fields are dropped.
func Decode(data []byte) ([]models.CollectionItem, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var top json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(top, &raw); err != nil {
		return nil, ErrInvalidFormat
	}

	entries := make([]models.CollectionItem, 0, len(raw))
	for i, entry := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", ErrInvalidFormat, i)
		}
		for _, key := range storeFields {
			delete(fields, key)
		}
		stripped, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidFormat, i, err)
		}

		var item models.CollectionItem
		if err := json.Unmarshal(stripped, &item); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidFormat, i, err)
		}
		entries = append(entries, item)
	}
	return entries, nil
}
