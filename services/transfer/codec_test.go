package transfer_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlog/models"
	"playlog/services/transfer"
)

func TestEncodeIsPrettyArrayWithStoreFields(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	order := int64(1700000000000)
	data, err := transfer.Encode([]models.CollectionItem{{
		ID: "abc", ExternalID: 7, Name: "Hollow Knight", Order: &order,
		CreatedAt: created, UpdatedAt: created,
	}})
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \"id\": \"abc\""), text)
	assert.Contains(t, text, `"createdAt": "2024-01-02T03:04:05Z"`)
	assert.Contains(t, text, `"order": 1700000000000`)
}

func TestEncodeEmptyCollection(t *testing.T) {
	data, err := transfer.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "games-2024-05-01.json", transfer.FileName(models.CollectionGames, now))
	assert.Equal(t, "animes-2024-05-01.json", transfer.FileName(models.CollectionAnimes, now))
}

func TestDecodeStripsStoreFields(t *testing.T) {
	doc := `[
	  {"id":"x1","name":"Okami","externalId":42,"yearPlayed":2020,"order":5,"platform":"ps2",
	   "createdAt":"2020-01-01T00:00:00Z","updatedAt":"2021-01-01T00:00:00Z"}
	]`
	entries, err := transfer.Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Empty(t, entry.ID)
	assert.True(t, entry.CreatedAt.IsZero())
	assert.True(t, entry.UpdatedAt.IsZero())
	assert.Equal(t, int64(42), entry.ExternalID)
	assert.Equal(t, 2020, entry.YearPlayed)
	require.NotNil(t, entry.Order)
	assert.Equal(t, int64(5), *entry.Order)
	assert.JSONEq(t, `"ps2"`, string(entry.Extra["platform"]))
}

func TestDecodeAcceptsLegacyExport(t *testing.T) {
	doc := `[{"name":"Celeste","rawgId":9,"released":"2018-01-25","rating":9.5,"hoursPlayed":"12"}]`
	_, err := transfer.Decode([]byte(doc))
	assert.ErrorIs(t, err, transfer.ErrInvalidFormat, "string hours cannot be decoded into a number")

	doc = `[{"name":"Celeste","rawgId":9,"released":"2018-01-25","rating":9.5}]`
	entries, err := transfer.Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, int64(9), entries[0].ExternalID)
	assert.Equal(t, 2018, entries[0].ReleasedYear)
	assert.Equal(t, 9.5, entries[0].PersonalRating)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{name: "not json", doc: `{"name":`, want: transfer.ErrInvalidJSON},
		{name: "object top level", doc: `{"name":"x"}`, want: transfer.ErrInvalidFormat},
		{name: "string top level", doc: `"hello"`, want: transfer.ErrInvalidFormat},
		{name: "non-object entry", doc: `[{"name":"a"}, 3]`, want: transfer.ErrInvalidFormat},
		{name: "null entry", doc: `[null]`, want: transfer.ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := transfer.Decode([]byte(tc.doc))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRoundTripPreservesFieldsExceptIdentity(t *testing.T) {
	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	order := int64(99)
	original := []models.CollectionItem{
		{ID: "a", ExternalID: 1, Name: "Hades", YearPlayed: 2023, HoursPlayed: 40.5, PersonalRating: 9, Order: &order, CreatedAt: created, UpdatedAt: created,
			Extra: map[string]json.RawMessage{"difficulty": json.RawMessage(`"Normal"`)}},
		{ID: "b", ExternalID: 2, Name: "Frieren", InWishlist: true, ChaptersWatched: 28, CreatedAt: created, UpdatedAt: created},
	}

	data, err := transfer.Encode(original)
	require.NoError(t, err)
	decoded, err := transfer.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(original))

	for i := range original {
		want := original[i].Clone()
		want.ID = ""
		want.CreatedAt = time.Time{}
		want.UpdatedAt = time.Time{}
		assert.Equal(t, want, decoded[i])
	}
}
