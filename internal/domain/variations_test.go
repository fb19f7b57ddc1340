package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariationsPreserveOrder(t *testing.T) {
	var v Variations
	require.NoError(t, json.Unmarshal([]byte(`{"Size":"L","Color":"Red","Fit":"Slim"}`), &v))

	assert.Equal(t, "Size: L, Color: Red, Fit: Slim", v.Label())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Size":"L","Color":"Red","Fit":"Slim"}`, string(out))
	assert.Equal(t, `{"Size":"L","Color":"Red","Fit":"Slim"}`, string(out))
}

func TestVariationsDuplicateKeyTakesLastValue(t *testing.T) {
	var v Variations
	require.NoError(t, json.Unmarshal([]byte(`{"Size":"M","Color":"Blue","Size":"XL"}`), &v))

	require.Len(t, v, 2)
	assert.Equal(t, "Size: XL, Color: Blue", v.Label())
}

func TestVariationsCoerceScalars(t *testing.T) {
	var v Variations
	require.NoError(t, json.Unmarshal([]byte(`{"Volume":500,"Cold":true,"Note":null}`), &v))

	val, ok := v.Get("Volume")
	require.True(t, ok)
	assert.Equal(t, "500", val)
	val, _ = v.Get("Cold")
	assert.Equal(t, "true", val)
	val, ok = v.Get("Note")
	assert.True(t, ok)
	assert.Empty(t, val)
}

func TestVariationsRejectNonObject(t *testing.T) {
	var v Variations
	assert.Error(t, json.Unmarshal([]byte(`["Size","L"]`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"Size":{"nested":true}}`), &v))
}

func TestVariationsNullRoundTrip(t *testing.T) {
	var v Variations
	require.NoError(t, json.Unmarshal([]byte(`null`), &v))
	assert.Nil(t, v)

	out, err := json.Marshal(SaleItem{ProductID: "p1"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "variations")
}

func TestProductCombinationLookup(t *testing.T) {
	p := Product{VariationCombinations: []VariationCombination{{ID: "c1", Stock: 3}, {ID: "c2", Stock: 1}}}

	assert.True(t, p.HasVariations())
	combo, ok := p.Combination("c2")
	require.True(t, ok)
	assert.Equal(t, 1, combo.Stock)

	_, ok = p.Combination("missing")
	assert.False(t, ok)
	assert.False(t, Product{}.HasVariations())
}
