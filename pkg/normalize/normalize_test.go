// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/gatekeeper/pkg/normalize"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already_canonical", "alice@example.com", "alice@example.com"},
		{"upper_case", "Alice@Example.COM", "alice@example.com"},
		{"surrounding_space", "  bob@example.com\t", "bob@example.com"},
		{"decomposed_accent", "Jose\u0301@example.com", "jos\u00e9@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize.Email(tt.input))
		})
	}
}

func TestNickname(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Neo", "Neo"},
		{"inner_runs", "  The   One ", "The One"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize.Nickname(tt.input))
		})
	}
}
