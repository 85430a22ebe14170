package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/shpitdev/site-classifier/internal/util"
)

// ErrMissingAPIKey is returned when a backend that requires a credential is
// constructed without one.
var ErrMissingAPIKey = eris.New("research: api key is required")

// Jina uses the Jina AI search (s.jina.ai) and reader (r.jina.ai) APIs.
type Jina struct {
	apiKey        string
	readBaseURL   string
	searchBaseURL string
	http          *http.Client
}

type JinaOption func(*Jina)

// WithJinaBaseURLs overrides the reader and search endpoints.
func WithJinaBaseURLs(readURL, searchURL string) JinaOption {
	return func(j *Jina) {
		if readURL != "" {
			j.readBaseURL = strings.TrimRight(readURL, "/")
		}
		if searchURL != "" {
			j.searchBaseURL = strings.TrimRight(searchURL, "/")
		}
	}
}

func WithJinaHTTPClient(hc *http.Client) JinaOption {
	return func(j *Jina) {
		if hc != nil {
			j.http = hc
		}
	}
}

func NewJina(apiKey string, opts ...JinaOption) (*Jina, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.Wrap(ErrMissingAPIKey, "jina")
	}
	j := &Jina{
		apiKey:        apiKey,
		readBaseURL:   "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

type jinaSearchResponse struct {
	Data []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Content     string `json:"content"`
		Description string `json:"description"`
	} `json:"data"`
}

type jinaReadResponse struct {
	Data struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"data"`
}

func (j *Jina) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	count := clampCount(maxResults)
	var resp jinaSearchResponse
	status, err := j.get(ctx, j.searchBaseURL+"/"+url.QueryEscape(query), &resp)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}
	// 422 means no results for the query.
	if status == http.StatusUnprocessableEntity {
		return nil, nil
	}
	out := make([]SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		snippet := strings.TrimSpace(d.Description)
		if snippet == "" {
			snippet = util.Truncate(normalizeSpace(d.Content), 300)
		}
		out = append(out, SearchResult{URL: strings.TrimSpace(d.URL), Title: strings.TrimSpace(d.Title), Snippet: snippet})
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

// FetchContent reads a page through the Jina reader.
func (j *Jina) FetchContent(ctx context.Context, target string) (string, error) {
	var resp jinaReadResponse
	if _, err := j.get(ctx, j.readBaseURL+"/"+target, &resp); err != nil {
		return "", eris.Wrap(err, "jina: read")
	}
	return normalizeSpace(resp.Data.Content), nil
}

func (j *Jina) get(ctx context.Context, reqURL string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+j.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := j.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return resp.StatusCode, nil
	}
	if err := checkStatus(resp); err != nil {
		return resp.StatusCode, err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, eris.Wrap(err, "decode response")
	}
	return resp.StatusCode, nil
}
