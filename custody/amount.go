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
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the display precision of amounts
const MaxDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

// FormatAmount renders a base-unit amount with the given number of decimals
func FormatAmount(amount uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(
		new(big.Int).SetUint64(amount),
		-int32(decimals),
	)
	return d.StringFixed(int32(decimals))
}

// ParseAmount converts a decimal string such as "1.5" to base units
func ParseAmount(s string, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf(
			"%w: at most %d decimals supported",
			ErrInvalidAmount,
			MaxDecimals,
		)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf(
			"%w: %s has more than %d decimal places",
			ErrInvalidAmount,
			s,
			decimals,
		)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, s)
	}
	return bi.Uint64(), nil
}
