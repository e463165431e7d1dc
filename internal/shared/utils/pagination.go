package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/cellcore/internal/shared/constants"
)

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

// ParsePagination parses page and page_size from the query string.
// Missing or invalid values fall back to the defaults; page_size is capped.
func ParsePagination(c *gin.Context) Pagination {
	page := parseQueryInt(c, "page", constants.DefaultPage)
	pageSize := parseQueryInt(c, "page_size", constants.DefaultPageSize)
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// parseQueryInt parses an integer query parameter with a default value.
func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}

// ApplyPagination calculates slice indices for pagination.
// Returns (start, end) indices for slicing: slice[start:end]
func ApplyPagination(total, page, pageSize int) (start, end int) {
	start = (page - 1) * pageSize
	end = start + pageSize

	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return start, end
}

// Paginate returns the requested page of items.
func Paginate[T any](items []T, p Pagination) []T {
	start, end := ApplyPagination(len(items), p.Page, p.PageSize)
	return items[start:end]
}

// TotalPages calculates total pages for a given total count.
func TotalPages(total, pageSize int) int {
	if total == 0 || pageSize == 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
