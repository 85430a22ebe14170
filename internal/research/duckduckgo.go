package research

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/shpitdev/site-classifier/internal/jsonx"
)

// DuckDuckGo talks to a DuckDuckGo search bridge exposing
// POST /duckduckgo_web_search and POST /fetch_content.
type DuckDuckGo struct {
	baseURL    string
	safeSearch string
	http       *http.Client
}

// DuckDuckGoOption configures the DuckDuckGo client.
type DuckDuckGoOption func(*DuckDuckGo)

// WithSafeSearch sets the safeSearch level (strict, moderate, off).
func WithSafeSearch(level string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		if level = strings.TrimSpace(level); level != "" {
			d.safeSearch = level
		}
	}
}

// WithDuckDuckGoHTTPClient sets a custom HTTP client.
func WithDuckDuckGoHTTPClient(hc *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		if hc != nil {
			d.http = hc
		}
	}
}

func NewDuckDuckGo(baseURL string, opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		safeSearch: "moderate",
		http:       &http.Client{Timeout: 15 * time.Second},
	}
	if d.baseURL == "" {
		d.baseURL = "http://localhost:8000"
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type ddgSearchRequest struct {
	Query      string `json:"query"`
	Count      int    `json:"count"`
	SafeSearch string `json:"safeSearch"`
}

// Search returns at most maxResults hits. The bridge answers with a bare list
// or with the list under "results" or "data"; hits without a URL are skipped.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	count := clampCount(maxResults)
	var raw json.RawMessage
	if err := d.post(ctx, "/duckduckgo_web_search", ddgSearchRequest{
		Query:      query,
		Count:      count,
		SafeSearch: d.safeSearch,
	}, &raw); err != nil {
		return nil, err
	}

	items := searchItems(raw)
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		u := jsonx.String(item["url"])
		if u == "" {
			continue
		}
		results = append(results, SearchResult{
			URL:     u,
			Title:   firstString(item, "title", "name"),
			Snippet: firstString(item, "snippet", "description", "excerpt"),
		})
		if len(results) >= count {
			break
		}
	}
	return results, nil
}

// FetchContent asks the bridge to fetch and clean a page.
func (d *DuckDuckGo) FetchContent(ctx context.Context, url string) (string, error) {
	var raw json.RawMessage
	if err := d.post(ctx, "/fetch_content", map[string]string{"url": url}, &raw); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeSpace(s), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", eris.Wrap(err, "duckduckgo: decode fetch_content response")
	}
	return normalizeSpace(firstString(obj, "content", "text", "result")), nil
}

func (d *DuckDuckGo) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "duckduckgo: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "duckduckgo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "duckduckgo: POST %s", path)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "duckduckgo: decode %s response", path)
	}
	return nil
}

func searchItems(raw json.RawMessage) []map[string]any {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var wrapped struct {
		Results []map[string]any `json:"results"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil
	}
	if wrapped.Results != nil {
		return wrapped.Results
	}
	return wrapped.Data
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := jsonx.String(item[k]); s != "" {
			return s
		}
	}
	return ""
}
