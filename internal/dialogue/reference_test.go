package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSingle(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want int
		ok   bool
	}{
		{"ordinal word", "the third one", 5, 3, true},
		{"numeric ordinal", "the 3rd", 5, 3, true},
		{"keyword number", "order 5", 5, 5, true},
		{"keyword with hash", "task #2", 5, 2, true},
		{"number keyword", "5th order", 5, 5, true},
		{"bare ordinal", "the 19th", 20, 19, true},
		{"whole message number", "4", 5, 4, true},
		{"number in sentence", "give me 2 please", 5, 2, true},
		{"out of range", "99", 5, 0, false},
		{"out of range ordinal skipped for later match", "the tenth or maybe 2", 5, 2, true},
		{"nothing numeric", "what about it", 5, 0, false},
		{"empty list", "1", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveSingle(tt.text, tt.max)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMultiple(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []int
	}{
		{"comma separated", "1,2,3", 5, []int{1, 2, 3}},
		{"spaced with and", "1 and 3", 5, []int{1, 3}},
		{"ordinal words", "second and fourth", 5, []int{2, 4}},
		{"mixed numbers and words", "1, the third and 5", 5, []int{1, 3, 5}},
		{"duplicates collapse", "2 and 2 and second", 5, []int{2}},
		{"out of range dropped", "1, 7 and 3", 5, []int{1, 3}},
		{"unsorted input sorted", "3 then 1", 5, []int{1, 3}},
		{"nothing", "all of them", 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMultiple(tt.text, tt.max))
		})
	}
}

func TestExtractOrderID(t *testing.T) {
	assert.Equal(t, "ORD-1A2B3C4D", extractOrderID("cancel ord-1a2b3c4d please"))
	assert.Equal(t, "", extractOrderID("cancel my order"))
}
