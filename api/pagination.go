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

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/blinklabs-io/bequest/database/types"
)

const (
	DefaultPaginationCount = 100
	MaxPaginationCount     = 100
	DefaultPaginationPage  = 1
)

const (
	headerCountTotal = "X-Pagination-Count-Total"
	headerPageTotal  = "X-Pagination-Page-Total"
)

var ErrInvalidPaginationParameters = errors.New(
	"invalid pagination parameters",
)

// PaginationParams is a page request for the event journal
type PaginationParams struct {
	Count int
	Page  int
	Order string
}

// ParsePagination reads count, page and order from the query string.
// Out-of-range numbers are clamped; malformed values are an error.
func ParsePagination(r *http.Request) (PaginationParams, error) {
	query := r.URL.Query()
	count, err := intParam(query, "count", DefaultPaginationCount)
	if err != nil {
		return PaginationParams{}, err
	}
	page, err := intParam(query, "page", DefaultPaginationPage)
	if err != nil {
		return PaginationParams{}, err
	}
	order := types.OrderAsc
	if v := query.Get("order"); v != "" {
		order = strings.ToLower(v)
		if order != types.OrderAsc && order != types.OrderDesc {
			return PaginationParams{}, fmt.Errorf(
				"%w: order must be %s or %s",
				ErrInvalidPaginationParameters,
				types.OrderAsc,
				types.OrderDesc,
			)
		}
	}
	return PaginationParams{
		Count: min(max(count, 1), MaxPaginationCount),
		Page:  max(page, 1),
		Order: order,
	}, nil
}

func intParam(query url.Values, name string, def int) (int, error) {
	v := query.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf(
			"%w: %s is not a number",
			ErrInvalidPaginationParameters,
			name,
		)
	}
	return n, nil
}

// SetPaginationHeaders reports the total matches and page count for a
// result set
func SetPaginationHeaders(
	w http.ResponseWriter,
	totalItems int64,
	params PaginationParams,
) {
	totalItems = max(totalItems, 0)
	perPage := int64(params.Count)
	if perPage < 1 {
		perPage = DefaultPaginationCount
	}
	totalPages := (totalItems + perPage - 1) / perPage
	w.Header().Set(headerCountTotal, strconv.FormatInt(totalItems, 10))
	w.Header().Set(headerPageTotal, strconv.FormatInt(totalPages, 10))
}
