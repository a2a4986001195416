package utils

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// Page is a 1-based page request read from ?page= and ?pageSize=.
type Page struct {
	Number int
	Size   int
}

// ParsePage falls back to page 1 of 10 on missing or out-of-range values.
func ParsePage(c *fiber.Ctx) Page {
	p := Page{}
	p.Number, _ = strconv.Atoi(c.Query("page", "1"))
	p.Size, _ = strconv.Atoi(c.Query("pageSize", strconv.Itoa(defaultPageSize)))
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > maxPageSize {
		p.Size = defaultPageSize
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Meta is the pagination block merged into list responses.
func (p Page) Meta(total int64) fiber.Map {
	return fiber.Map{
		"page":     p.Number,
		"pageSize": p.Size,
		"total":    total,
		"pages":    int(math.Ceil(float64(total) / float64(p.Size))),
	}
}
