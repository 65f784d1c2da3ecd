// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package custody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		expected string
	}{
		{0, 0, "0"},
		{10, 0, "10"},
		{1500000, 6, "1.500000"},
		{1, 6, "0.000001"},
		{18446744073709551615, 6, "18446744073709.551615"},
	}
	for _, tt := range tests {
		assert.Equal(
			t,
			tt.expected,
			FormatAmount(tt.amount, tt.decimals),
			"amount=%d decimals=%d", tt.amount, tt.decimals,
		)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		decimals uint8
		expected uint64
	}{
		{"10", 0, 10},
		{"1.5", 6, 1500000},
		{"0.000001", 6, 1},
		{"2", 6, 2000000},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.input, tt.decimals)
		require.NoError(t, err, "input=%q", tt.input)
		assert.Equal(t, tt.expected, got, "input=%q", tt.input)
	}
}

func TestParseAmountInvalid(t *testing.T) {
	tests := []struct {
		input    string
		decimals uint8
	}{
		{"abc", 6},
		{"-1", 6},
		{"0.0000001", 6},
		{"1.5", 0},
		{"18446744073709551616", 0},
		{"1", 19},
	}
	for _, tt := range tests {
		_, err := ParseAmount(tt.input, tt.decimals)
		require.ErrorIs(t, err, ErrInvalidAmount, "input=%q", tt.input)
	}
}
