package discovery

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page holds the archive links parsed from one listing page plus the cursor
// for the next page. An empty NextCursor means the listing is exhausted.
type Page struct {
	Links      []string
	NextCursor string
}

// ParseListing extracts zip archive links and the next-page cursor from a
// harvest listing page. Relative hrefs are resolved against base.
func ParseListing(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		u, err := base.Parse(href)
		if err != nil {
			return
		}

		if strings.HasSuffix(strings.ToLower(u.Path), ".zip") {
			page.Links = append(page.Links, u.String())
			return
		}

		// The pager link carries the offset for the next page.
		if offset := u.Query().Get("offset"); offset != "" {
			page.NextCursor = offset
		}
	})

	return page, nil
}
