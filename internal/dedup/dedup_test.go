package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

type setLookup map[string]bool

func (s setLookup) Contains(k string) bool { return s[k] }

func TestResolveContentIdentity(t *testing.T) {
	id := Resolve("  https://example.com \n", true, utils.Box{MaxX: 5, MaxY: 5}, nil)
	assert.Equal(t, Identity{Key: "https://example.com", Kind: KindContent}, id)
	assert.True(t, id.Persistent())
	assert.Equal(t, "content", id.Kind.String())
}

func TestResolvePositionIdentity(t *testing.T) {
	box := utils.Box{MinX: 3, MinY: 4, MaxX: 50, MaxY: 61}

	id := Resolve("", false, box, nil)
	assert.Equal(t, "3_4_50_61", id.Key)
	assert.Equal(t, KindPosition, id.Kind)
	assert.False(t, id.Persistent())

	// Decoded but blank text is treated like an unreadable code.
	assert.Equal(t, id, Resolve("   ", true, box, nil))
	// Text without a successful decode is ignored.
	assert.Equal(t, id, Resolve("junk", false, box, nil))
}

func TestResolveIsDeterministic(t *testing.T) {
	box := utils.Box{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}
	for range 5 {
		assert.Equal(t, Resolve("x", true, box, nil), Resolve("x", true, box, nil))
		assert.Equal(t, Resolve("", false, box, nil), Resolve("", false, box, nil))
	}
}

func TestResolveNormalizes(t *testing.T) {
	nfc, err := NewNormalizer("nfc")
	require.NoError(t, err)

	decomposed := "Cafe\u0301"
	id := Resolve(decomposed, true, utils.Box{}, nfc)
	assert.Equal(t, "Caf\u00e9", id.Key)

	none, err := NewNormalizer("")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, decomposed, Resolve(decomposed, true, utils.Box{}, none).Key)

	_, err = NewNormalizer("NFX")
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	id := Identity{Key: "A"}

	cases := []struct {
		name     string
		session  Lookup
		index    Lookup
		decision Decision
		reason   string
	}{
		{"neither", setLookup{}, setLookup{}, New, ""},
		{"nil sets", nil, nil, New, ""},
		{"session only", setLookup{"A": true}, setLookup{}, Duplicate, ReasonSession},
		{"index only", setLookup{}, setLookup{"A": true}, Duplicate, ReasonIndex},
		{"both prefers session", setLookup{"A": true}, setLookup{"A": true}, Duplicate, ReasonSession},
		{"other keys", setLookup{"B": true}, setLookup{"C": true}, New, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := Classify(id, c.session, c.index)
			assert.Equal(t, c.decision, v.Decision)
			assert.Equal(t, c.reason, v.Reason)
			assert.Equal(t, c.decision == New, v.IsNew())
		})
	}
}

func TestClassifyHasNoSideEffects(t *testing.T) {
	s := NewSessionSet()
	v := Classify(Identity{Key: "A"}, s, nil)
	assert.True(t, v.IsNew())
	assert.Zero(t, s.Len())
}

func TestSessionSet(t *testing.T) {
	s := NewSessionSet()
	assert.True(t, s.Add("b"))
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Contains("a"))
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	s.Remove("a")
	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Keys())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "NEW", New.String())
	assert.Equal(t, "DUPLICATE", Duplicate.String())
}

func TestDecisionUnmarshalText(t *testing.T) {
	var d Decision
	require.NoError(t, d.UnmarshalText([]byte("duplicate")))
	assert.Equal(t, Duplicate, d)
	require.NoError(t, d.UnmarshalText([]byte("NEW")))
	assert.Equal(t, New, d)
	assert.Error(t, d.UnmarshalText([]byte("maybe")))
}
