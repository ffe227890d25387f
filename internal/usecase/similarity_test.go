package usecase_test

import (
	"testing"

	"news-orchestrator/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func TestSequenceRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello", "hello", 1},
		{"both empty", "", "", 1},
		{"one empty", "abc", "", 0},
		{"disjoint", "abc", "xyz", 0},
		{"shifted block", "abcd", "bcde", 0.75},
		{"case insensitive", "ABCD", "bcde", 0.75},
		{"two blocks", "abxcd", "abcd", 8.0 / 9.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, usecase.SequenceRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSequenceRatio_Symmetric(t *testing.T) {
	a := "articles about renewable energy"
	b := "more about renewable energy please"
	assert.InDelta(t, usecase.SequenceRatio(a, b), usecase.SequenceRatio(b, a), 0.15)
	assert.Greater(t, usecase.SequenceRatio(a, b), 0.4)
}
