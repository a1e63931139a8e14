package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMerge_SecondArgumentDurationWins(t *testing.T) {
	a := &Tag{Duration: 100}
	b := &Tag{Duration: 200}

	merged := Merge(a, b)
	assert.Equal(t, 200.0, merged.Duration)

	merged2 := Merge(b, a)
	assert.Equal(t, 100.0, merged2.Duration)
}

func TestMerge_FallsBackWhenSecondDurationUnset(t *testing.T) {
	a := &Tag{Duration: 100}
	b := &Tag{} // no duration

	merged := Merge(a, b)
	assert.Equal(t, 100.0, merged.Duration)
}

func TestMerge_ItemsAppendedAndDeduplicated(t *testing.T) {
	a := New()
	a.AddItem(TypeArtist, "Alice")
	b := New()
	b.AddItem(TypeArtist, "Alice")
	b.AddItem(TypeTitle, "Song")

	merged := Merge(a, b)
	assert.Len(t, merged.Items, 2)
	assert.Contains(t, merged.Items, Item{Type: TypeArtist, Value: "Alice"})
	assert.Contains(t, merged.Items, Item{Type: TypeTitle, Value: "Song"})
}

func TestMerge_NilArguments(t *testing.T) {
	a := New()
	a.AddItem(TypeArtist, "Alice")

	assert.True(t, Merge(nil, a).Equal(a))
	assert.True(t, Merge(a, nil).Equal(a))
}

// Property: merging never drops an item present in either input.
func TestMerge_NeverDropsItemsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		genItems := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z]{1,12}`), 0, 6)

		aVals := genItems.Draw(t, "aVals")
		bVals := genItems.Draw(t, "bVals")

		a := New()
		for _, v := range aVals {
			a.AddItem(TypeArtist, v)
		}
		b := New()
		for _, v := range bVals {
			b.AddItem(TypeArtist, v)
		}

		merged := Merge(a, b)

		want := make(map[string]bool)
		for _, v := range aVals {
			want[v] = true
		}
		for _, v := range bVals {
			want[v] = true
		}

		got := make(map[string]bool)
		for _, it := range merged.Items {
			got[it.Value] = true
		}

		assert.Equal(t, want, got)
	})
}
