package utils

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrInvalidPagination signals unusable page/limit query parameters.
var ErrInvalidPagination = errors.New("invalid pagination parameters")

// ParsePagination reads page and limit from the query string. Page
// defaults to 1, limit to defaultLimit; limit is bounded to [1,100].
func ParsePagination(r *http.Request, defaultLimit int) (page, limit int, err error) {
	page = 1
	limit = defaultLimit

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, ErrInvalidPagination
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, ErrInvalidPagination
		}
	}

	if page < 1 || limit < 1 || limit > 100 {
		return 0, 0, ErrInvalidPagination
	}
	return page, limit, nil
}
