package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validUnit() SourceUnit {
	return SourceUnit{
		ID:           UnitID("src/hooks/useCart.ts", "useCart", KindHook),
		Path:         "src/hooks/useCart.ts",
		ContentHash:  HashContent([]byte("export function useCart() {}")),
		Kind:         KindHook,
		SymbolName:   "useCart",
		Excerpt:      "export function useCart() {}",
		LastModified: time.Now(),
	}
}

func TestUnitIDIsStable(t *testing.T) {
	a := UnitID("src/a.ts", "widget", KindUtil)
	b := UnitID("src/a.ts", "widget", KindUtil)
	assert.Equal(t, a, b)

	// Any component changing changes the ID.
	assert.NotEqual(t, a, UnitID("src/b.ts", "widget", KindUtil))
	assert.NotEqual(t, a, UnitID("src/a.ts", "gadget", KindUtil))
	assert.NotEqual(t, a, UnitID("src/a.ts", "widget", KindHook))
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("world"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsZero())
	assert.True(t, ContentHash{}.IsZero())
	assert.Len(t, a.String(), 64)
}

func TestValidKind(t *testing.T) {
	for _, k := range []Kind{KindComponent, KindHook, KindStore, KindUtil, KindRaw} {
		assert.True(t, ValidKind(k), string(k))
	}
	assert.False(t, ValidKind("module"))
	assert.False(t, ValidKind(""))
}

func TestSourceUnitValidate(t *testing.T) {
	valid := validUnit()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*SourceUnit)
		want   error
	}{
		{"missing id", func(u *SourceUnit) { u.ID = "" }, ErrMissingUnitID},
		{"missing path", func(u *SourceUnit) { u.Path = "" }, ErrMissingPath},
		{"invalid kind", func(u *SourceUnit) { u.Kind = "module" }, ErrInvalidKind},
		{"empty excerpt", func(u *SourceUnit) { u.Excerpt = "" }, ErrEmptyExcerpt},
		{"zero hash", func(u *SourceUnit) { u.ContentHash = ContentHash{} }, ErrMissingContentHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUnit()
			tt.mutate(&u)
			assert.ErrorIs(t, u.Validate(), tt.want)
		})
	}
}

func TestQueryValidate(t *testing.T) {
	q := Query{Text: "cart", Budget: 1024}
	require.NoError(t, q.Validate())

	assert.ErrorIs(t, (&Query{Budget: 1024}).Validate(), ErrEmptyQuery)
	assert.ErrorIs(t, (&Query{Text: "cart"}).Validate(), ErrInvalidBudget)

	q.Filters.Kinds = []Kind{"module"}
	assert.ErrorIs(t, q.Validate(), ErrInvalidKind)
}

func TestBundleSize(t *testing.T) {
	b := ContextBundle{}
	assert.Zero(t, b.Size())

	b.Entries = []BundleEntry{
		{Excerpt: "12345"},
		{Excerpt: "678"},
	}
	assert.Equal(t, 8, b.Size())
}
