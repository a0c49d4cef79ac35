package wall

// Pagination describes one page of a paginated read.
type Pagination struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// NewPagination computes page metadata for the given totals.
// hasNextPage holds iff offset+limit < totalItems at query time.
func NewPagination(page, limit, totalItems int) Pagination {
	totalPages := (totalItems + limit - 1) / limit
	offset := (page - 1) * limit
	return Pagination{
		Page:            page,
		Limit:           limit,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     offset+limit < totalItems,
		HasPreviousPage: page > 1,
	}
}

// Page is the response envelope for paginated endpoints.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}
