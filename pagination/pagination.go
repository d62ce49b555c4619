// Package pagination builds the navigation links of a paged listing.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

// Default query parameter names.
const (
	DefaultPageParam     = "page"
	DefaultPageSizeParam = "page_size"
)

// Request describes the page that was served.
type Request struct {
	// URL is the full request URL, endpoint and query.
	URL      string
	Page     int
	PageSize int
	// Total is the number of matching records across all pages.
	Total int64
	// Returned is the number of records on the served page.
	Returned int
}

// Links are the neighbor page URLs. A link is "" when the page does not
// exist.
type Links struct {
	Next       string `json:"next"`
	Previous   string `json:"previous"`
	First      string `json:"first"`
	Last       string `json:"last"`
	TotalPages int64  `json:"total_pages"`
	Total      int64  `json:"total"`
}

// Calculator rewrites the page parameters of a request URL.
type Calculator struct {
	PageParam     string
	PageSizeParam string
}

// New returns a calculator using the default parameter names.
func New() Calculator {
	return Calculator{PageParam: DefaultPageParam, PageSizeParam: DefaultPageSizeParam}
}

// Calculate uses the default parameter names.
func Calculate(req Request) Links {
	return New().Calculate(req)
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total int64, pageSize int) int64 {
	if pageSize < 1 || total <= 0 {
		return 0
	}
	size := int64(pageSize)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

// Calculate returns the links for req. next requires a full page and a page
// beyond the current one; previous and first require a page before it; last
// requires the current page to come before the last.
func (c Calculator) Calculate(req Request) Links {
	pages := TotalPages(req.Total, req.PageSize)
	links := Links{TotalPages: pages, Total: req.Total}

	endpoint, query, _ := strings.Cut(req.URL, "?")
	others := c.carried(query)
	page := int64(req.Page)

	if req.Returned == req.PageSize && page < pages {
		links.Next = c.build(endpoint, req.PageSize, page+1, others)
	}
	if page > 1 {
		links.Previous = c.build(endpoint, req.PageSize, page-1, others)
		links.First = c.build(endpoint, req.PageSize, 1, others)
	}
	if page < pages {
		links.Last = c.build(endpoint, req.PageSize, pages, others)
	}
	return links
}

// carried returns the raw query pairs other than the page parameters, in
// their original order.
func (c Calculator) carried(query string) []string {
	if query == "" {
		return nil
	}
	var out []string
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if name == c.PageParam || name == c.PageSizeParam {
			continue
		}
		out = append(out, pair)
	}
	return out
}

func (c Calculator) build(endpoint string, pageSize int, page int64, others []string) string {
	params := make([]string, 0, len(others)+2)
	params = append(params,
		url.QueryEscape(c.PageSizeParam)+"="+strconv.Itoa(pageSize),
		url.QueryEscape(c.PageParam)+"="+strconv.FormatInt(page, 10),
	)
	params = append(params, others...)
	return endpoint + "?" + strings.Join(params, "&")
}
