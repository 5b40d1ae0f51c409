package reader

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"domainreader/internal/reader/model"
)

func TestCleanParams(t *testing.T) {
	now := time.Now()
	in := map[string]any{
		"":         "no key",
		"nil":      nil,
		"empty":    "",
		"false":    false,
		"zero":     0,
		"zeroF":    0.0,
		"zeroNum":  json.Number("0"),
		"emptyArr": []any{},
		"emptyMap": map[string]any{},
		"id":       42,
		"name":     "acme",
		"flag":     true,
		"num":      json.Number("3.5"),
		"when":     now,
	}

	out := CleanParams(in)

	assert.Equal(t, map[string]any{
		"id":   42,
		"name": "acme",
		"flag": true,
		"num":  json.Number("3.5"),
		"when": now,
	}, out)
	assert.Len(t, in, 14, "input is not modified")
}

func TestBranchOf(t *testing.T) {
	assert.Equal(t, "master", branchOf(map[string]any{}))
	assert.Equal(t, "master", branchOf(map[string]any{"branch": "  "}))
	assert.Equal(t, "master", branchOf(map[string]any{"branch": 12}))
	assert.Equal(t, "promoA", branchOf(map[string]any{"branch": "promoA"}))
}

func TestWindowOf(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   *model.Window
	}{
		{"none", map[string]any{}, nil},
		{"page only", map[string]any{"page": 2}, nil},
		{"size only", map[string]any{"page_size": 10}, nil},
		{"ints", map[string]any{"page": 2, "page_size": 10}, &model.Window{Limit: 10, Offset: 10}},
		{"first page", map[string]any{"page": 1, "page_size": 20}, &model.Window{Limit: 20, Offset: 0}},
		{"query string values", map[string]any{"page": "3", "page_size": "5"}, &model.Window{Limit: 5, Offset: 10}},
		{"json numbers", map[string]any{"page": json.Number("2"), "page_size": json.Number("25")}, &model.Window{Limit: 25, Offset: 25}},
		{"whole floats", map[string]any{"page": 2.0, "page_size": 10.0}, &model.Window{Limit: 10, Offset: 10}},
		{"fractional page", map[string]any{"page": 1.5, "page_size": 10}, nil},
		{"negative size", map[string]any{"page": 1, "page_size": -10}, nil},
		{"not a number", map[string]any{"page": "two", "page_size": 10}, nil},
		{"clamped", map[string]any{"page": 2, "page_size": 5000}, &model.Window{Limit: 1000, Offset: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowOf(tt.params, 1000))
		})
	}
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("empty")
	assert.NoError(t, err)
	assert.Equal(t, FailEmpty, p)

	p, err = ParseFailurePolicy("")
	assert.NoError(t, err)
	assert.Equal(t, FailWithError, p)

	_, err = ParseFailurePolicy("ignore")
	assert.Error(t, err)
}
