package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytarchive/storage"
)

func rec(t *testing.T, js string) storage.Record {
	t.Helper()
	r, err := storage.ParseRecord([]byte(js))
	require.NoError(t, err)
	return r
}

func TestDiff(t *testing.T) {
	exclude := []string{"first_seen", "last_updated", "view_count", "stats.likes"}

	tests := []struct {
		name    string
		old     string
		new     string
		ordered bool
		want    []string
	}{
		{
			name: "identical",
			old:  `{"a": 1, "b": "x"}`,
			new:  `{"a": 1, "b": "x"}`,
		},
		{
			name: "only excluded fields differ",
			old:  `{"a": 1, "first_seen": "t1", "last_updated": "t1", "view_count": "10"}`,
			new:  `{"a": 1, "first_seen": "t2", "last_updated": "t2", "view_count": "99"}`,
		},
		{
			name: "excluded field present on one side only",
			old:  `{"a": 1}`,
			new:  `{"a": 1, "last_updated": "t"}`,
		},
		{
			name: "value change",
			old:  `{"title": "Old"}`,
			new:  `{"title": "New"}`,
			want: []string{"title"},
		},
		{
			name: "added and removed keys",
			old:  `{"a": 1, "gone": true}`,
			new:  `{"a": 1, "fresh": null}`,
			want: []string{"fresh", "gone"},
		},
		{
			name: "nested path",
			old:  `{"stats": {"likes": 1, "dislikes": 2}}`,
			new:  `{"stats": {"likes": 5, "dislikes": 3}}`,
			want: []string{"stats.dislikes"},
		},
		{
			name: "nested excluded only",
			old:  `{"stats": {"likes": 1}}`,
			new:  `{"stats": {"likes": 5}}`,
		},
		{
			name: "list order ignored by default",
			old:  `{"tags": ["a", "b", "c"]}`,
			new:  `{"tags": ["c", "a", "b"]}`,
		},
		{
			name: "list repeats ignored",
			old:  `{"tags": ["a", "a", "b"]}`,
			new:  `{"tags": ["b", "a"]}`,
		},
		{
			name: "list element added",
			old:  `{"tags": ["a", "a"]}`,
			new:  `{"tags": ["a", "b"]}`,
			want: []string{"tags"},
		},
		{
			name:    "ordered lists",
			old:     `{"items": ["a", "b"]}`,
			new:     `{"items": ["b", "a"]}`,
			ordered: true,
			want:    []string{"items"},
		},
		{
			name: "number and string are different",
			old:  `{"n": 1}`,
			new:  `{"n": "1"}`,
			want: []string{"n"},
		},
		{
			name: "equal numbers in different notation",
			old:  `{"n": 1.0}`,
			new:  `{"n": 1}`,
		},
		{
			name: "null vs object",
			old:  `{"topic_details": null}`,
			new:  `{"topic_details": {"ids": []}}`,
			want: []string{"topic_details"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(rec(t, tt.old), rec(t, tt.new), DiffOptions{Exclude: exclude, OrderedLists: tt.ordered})
			if len(tt.want) == 0 {
				assert.True(t, got.Empty(), "unexpected changes: %s", got)
				return
			}
			assert.Equal(t, tt.want, got.Paths())
		})
	}
}

func TestDiffMixedNumberTypes(t *testing.T) {
	old := rec(t, `{"schema_version": 2}`)
	new := storage.Record{"schema_version": 2}
	assert.True(t, Diff(old, new, DiffOptions{}).Empty())
}
