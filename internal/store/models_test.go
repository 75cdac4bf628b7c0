package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		wantErr    bool
	}{
		{path: "tickets/t1", collection: "tickets", id: "t1"},
		{path: "/courses/c1/lessons/l1/", collection: "courses/c1/lessons", id: "l1"},
		{path: "tickets", wantErr: true},
		{path: "courses/c1/lessons", wantErr: true},
		{path: "tickets//", wantErr: true},
	}
	for _, tt := range tests {
		collection, id, err := SplitPath(tt.path)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPath, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.collection, collection)
		assert.Equal(t, tt.id, id)
	}
}

func TestTimesNormalizeToSortableStrings(t *testing.T) {
	early := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("BRT", -3*3600))
	late := early.Add(time.Millisecond)

	a := normalizeValue(early, time.Time{}).(string)
	b := normalizeValue(late, time.Time{}).(string)
	assert.Less(t, a, b)
	assert.True(t, ParseTime(a).Equal(early))
}

func TestDocumentDecode(t *testing.T) {
	doc := Document{Path: "tickets/t1", Fields: Fields{"subject": "Help", "adminRead": false}}
	var target struct {
		Subject   string `json:"subject"`
		AdminRead *bool  `json:"adminRead"`
	}
	require.NoError(t, doc.Decode(&target))
	assert.Equal(t, "Help", target.Subject)
	require.NotNil(t, target.AdminRead)
	assert.False(t, *target.AdminRead)
}
