package fetch

import (
	"context"
	"net/http"
	"regexp"
)

// nextLinkPattern extracts the URL of the rel="next" entry from a Link
// header such as `<https://x/?page=2>; rel="next", <https://x/?page=5>; rel="last"`.
var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// NextLink returns the continuation URL carried by h, if any.
func NextLink(h http.Header) (string, bool) {
	for _, v := range h.Values("Link") {
		if m := nextLinkPattern.FindStringSubmatch(v); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// All fetches every page starting at url and returns the concatenated
// items in page order. Each page body must be a JSON array of T.
// Pagination stops at the first response without a next link; any failed
// page aborts the whole call with no partial result.
func All[T any](ctx context.Context, c *Client, url string, header http.Header) ([]T, error) {
	var items []T
	for {
		var page []T
		respHeader, err := c.GetJSON(ctx, url, header, &page)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		next, ok := NextLink(respHeader)
		if !ok {
			return items, nil
		}
		url = next
	}
}
