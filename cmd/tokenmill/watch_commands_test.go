package main

import (
	"encoding/json"
	"testing"

	"github.com/itchyny/gojq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFilter(t *testing.T, filter string) *gojq.Code {
	t.Helper()
	query, err := gojq.Parse(filter)
	require.NoError(t, err)
	code, err := gojq.Compile(query)
	require.NoError(t, err)
	return code
}

func TestMatchesFilters(t *testing.T) {
	intentEvent := json.RawMessage(`{
		"intent": "mint-1",
		"kind": "mint",
		"state": "confirmed",
		"severity": "success",
		"mint": "mint123"
	}`)

	tests := []struct {
		name    string
		filters []string
		data    json.RawMessage
		want    bool
	}{
		{
			name: "no filters matches everything",
			data: intentEvent,
			want: true,
		},
		{
			name:    "field equality match",
			filters: []string{`.kind == "mint"`},
			data:    intentEvent,
			want:    true,
		},
		{
			name:    "field equality mismatch",
			filters: []string{`.kind == "transfer"`},
			data:    intentEvent,
			want:    false,
		},
		{
			name:    "all filters must match",
			filters: []string{`.kind == "mint"`, `.state == "failed"`},
			data:    intentEvent,
			want:    false,
		},
		{
			name:    "contains match",
			filters: []string{`. | contains({mint: "mint123"})`},
			data:    intentEvent,
			want:    true,
		},
		{
			name:    "selecting a present field is truthy",
			filters: []string{`.intent`},
			data:    intentEvent,
			want:    true,
		},
		{
			name:    "selecting a missing field is falsy",
			filters: []string{`.signature`},
			data:    intentEvent,
			want:    false,
		},
		{
			name:    "non-JSON payload fails filters",
			filters: []string{`.kind == "mint"`},
			data:    json.RawMessage(`not json`),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled := make([]*gojq.Code, len(tt.filters))
			for i, filter := range tt.filters {
				compiled[i] = compileFilter(t, filter)
			}
			assert.Equal(t, tt.want, matchesFilters(tt.data, compiled))
		})
	}
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy(map[string]interface{}{}))
}
