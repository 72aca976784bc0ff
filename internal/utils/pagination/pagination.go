package pagination

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Request is a 0-based page request.
type Request struct {
	Page int
	Size int
}

// ParseFromRequest handles page/size query parameters from Fiber context.
// Missing or malformed values become 0, which Normalize later defaults.
func ParseFromRequest(c *fiber.Ctx) Request {
	page, _ := strconv.Atoi(c.Query("page", "0"))
	size, _ := strconv.Atoi(c.Query("size", "0"))
	return Request{Page: page, Size: size}
}

// Normalize clamps the request: negative pages become 0, sizes <= 0 take
// defaultSize and sizes above maxSize are cut to maxSize.
func (r Request) Normalize(defaultSize, maxSize int) Request {
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Size <= 0 {
		r.Size = defaultSize
	}
	if maxSize > 0 && r.Size > maxSize {
		r.Size = maxSize
	}
	if r.Size < 1 {
		r.Size = 1
	}
	return r
}

// Offset is the number of rows to skip.
func (r Request) Offset() int {
	return r.Page * r.Size
}

// Page is a slice of results with paging metadata.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int   `json:"pageNumber"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Last          bool  `json:"last"`
}

// NewPage builds a page for req out of content and the overall total.
func NewPage[T any](content []T, req Request, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int(total / int64(req.Size))
		if total%int64(req.Size) > 0 {
			totalPages++
		}
	}
	return Page[T]{
		Content:       content,
		PageNumber:    req.Page,
		PageSize:      req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          req.Page >= totalPages-1,
	}
}

// Map converts every element of src with fn.
func Map[S, T any](src []S, fn func(S) T) []T {
	out := make([]T, 0, len(src))
	for _, s := range src {
		out = append(out, fn(s))
	}
	return out
}
