package engine

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/records"
)

// parseLeadFilter reads the leads table filter state from the query string.
// Metadata filters are given as meta.<field_key>=value or
// filter[<field_key>]=value.
func parseLeadFilter(c *fiber.Ctx) records.LeadFilter {
	f := records.LeadFilter{
		Search:   c.Query("search"),
		Interest: c.Query("interest"),
		Reply:    c.Query("reply"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Where:    c.Query("where"),
	}
	for key, val := range c.Queries() {
		var field string
		switch {
		case strings.HasPrefix(key, "meta."):
			field = strings.TrimPrefix(key, "meta.")
		case strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]"):
			field = key[len("filter[") : len(key)-1]
		default:
			continue
		}
		if field == "" || val == "" || val == "all" {
			continue
		}
		if f.Meta == nil {
			f.Meta = map[string]string{}
		}
		f.Meta[field] = val
	}
	return f
}

func parseContactFilter(c *fiber.Ctx) records.ContactFilter {
	return records.ContactFilter{
		Search:   c.Query("search"),
		Location: c.Query("location"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}
}

func parsePage(c *fiber.Ctx) int {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
