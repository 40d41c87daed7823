package pagination

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Page size bounds for admin listings
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Params is the page window requested by the client
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// Meta describes the full result set the window was cut from
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Response wraps a page of results with its metadata
type Response struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta"`
}

// GetParams reads page/limit query parameters, clamping both into range.
// Out-of-range values fall back rather than erroring.
func GetParams(c *fiber.Ctx) *Params {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(DefaultLimit)))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// NewResponse builds a paginated response for a page of data
func NewResponse(data interface{}, params *Params, total int64) *Response {
	pages := int((total + int64(params.Limit) - 1) / int64(params.Limit))

	return &Response{
		Data: data,
		Meta: &Meta{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: pages,
			HasNext:    params.Page < pages,
			HasPrev:    params.Page > 1,
		},
	}
}
