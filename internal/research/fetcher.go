package research

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const maxPageBytes = 2 << 20

// PageFetcher downloads a page and reduces it to whitespace-normalized text.
// Scripts, styles and noscript blocks are dropped. No JavaScript is executed.
type PageFetcher struct {
	http *http.Client
}

func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PageFetcher{http: &http.Client{Timeout: timeout}}
}

func (f *PageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return HTMLText(io.LimitReader(resp.Body, maxPageBytes))
}

// HTMLText parses an HTML document and returns its visible text with runs of
// whitespace collapsed to single spaces.
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", eris.Wrap(err, "parse html")
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	collectText(doc.Selection, &parts)
	return strings.Join(parts, " "), nil
}

func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			if t := normalizeSpace(s.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(s, parts)
	})
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
