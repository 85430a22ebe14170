// Package mockbackend serves scripted search, fetch and inference endpoints so
// the classifier can run end to end without network access.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/shpitdev/site-classifier/internal/llm"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	// Detail is the search query, fetched URL or the kind of model prompt.
	Detail string
}

// Site is one scripted facility.
type Site struct {
	Company    string
	SiteType   string
	Confidence string
	// Evidence is the page text that identifies the facility. The classifier
	// answers with SiteType only when Evidence reaches its prompt.
	Evidence string
	// Hidden pages are only returned for facility-type queries, which the
	// collector issues when it widens a search.
	Hidden bool
}

func (s Site) slug() string {
	return slugify(s.Company)
}

// Server implements the search bridge and Ollama APIs over a fixed site list.
type Server struct {
	mu    sync.Mutex
	sites map[string]Site
	calls []Call

	failGenerate int
}

// New constructs a mock server with the given sites.
func New(sites ...Site) *Server {
	s := &Server{sites: make(map[string]Site)}
	for _, site := range sites {
		s.AddSite(site)
	}
	return s
}

// DefaultSites is the demo data served by cmd/mock-backend.
func DefaultSites() []Site {
	return []Site{
		{Company: "Acme Logistics", SiteType: "warehouse", Confidence: "high", Evidence: "Acme Logistics operates a 400,000 sq ft distribution warehouse with 60 dock doors."},
		{Company: "Borealis Steel", SiteType: "manufacturing plant", Confidence: "medium", Evidence: "Borealis Steel runs an electric arc furnace rolling mill at this plant.", Hidden: true},
		{Company: "Cobalt Health", SiteType: "office", Confidence: "medium", Evidence: "Cobalt Health corporate headquarters houses administrative offices."},
	}
}

// AddSite registers or replaces a site.
func (s *Server) AddSite(site Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.slug()] = site
}

// FailGenerate makes the next n /api/generate calls answer 503.
func (s *Server) FailGenerate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGenerate = n
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/duckduckgo_web_search", s.handleSearch)
	mux.HandleFunc("/fetch_content", s.handleFetchContent)
	mux.HandleFunc("/pages/", s.handlePage)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/chat", s.handleChat)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CountCalls returns how many calls hit path.
func (s *Server) CountCalls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) recordCall(r *http.Request, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Detail: detail})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.recordCall(r, "")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordCall(r, "")
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.recordCall(r, req.Query)

	query := strings.ToLower(req.Query)
	facilityQuery := strings.Contains(query, "warehouse") ||
		strings.Contains(query, "manufacturing") ||
		strings.Contains(query, "headquarters") ||
		strings.Contains(query, "permit")

	results := []map[string]string{}
	for _, site := range s.sortedSites() {
		if !strings.Contains(query, strings.ToLower(site.Company)) {
			continue
		}
		if site.Hidden && !facilityQuery {
			continue
		}
		results = append(results, map[string]string{
			"url":         baseURL(r) + "/pages/" + site.slug(),
			"title":       site.Company + " facility",
			"description": firstSentence(site.Evidence),
		})
	}
	if req.Count > 0 && len(results) > req.Count {
		results = results[:req.Count]
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleFetchContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if r.Method != http.MethodPost {
		s.recordCall(r, "")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordCall(r, "")
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.recordCall(r, req.URL)

	slug := req.URL[strings.LastIndex(req.URL, "/")+1:]
	site, ok := s.site(slug)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": site.Evidence})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/pages/")
	s.recordCall(r, slug)
	site, ok := s.site(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<html><head><title>%s</title><script>var tracking = 1;</script><style>p{}</style></head><body><p>%s</p></body></html>",
		html.EscapeString(site.Company), html.EscapeString(site.Evidence))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordCall(r, "")
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	kind := promptKind(req.Prompt)
	s.recordCall(r, kind)

	s.mu.Lock()
	fail := s.failGenerate > 0
	if fail {
		s.failGenerate--
	}
	s.mu.Unlock()
	if fail {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
		return
	}

	company := promptField(req.Prompt, "Company")
	var out string
	switch kind {
	case "plan":
		b, _ := json.Marshal(map[string]any{
			"queries":   []string{quote(company) + " facility", quote(company) + " " + quote(promptField(req.Prompt, "Address"))},
			"rationale": "company and address lookups",
		})
		out = "```json\n" + string(b) + "\n```"
	case "summarize":
		out = "- " + firstSentence(evidenceSection(req.Prompt, "Research Documents:")) + " [1]"
	case "classify":
		out = s.verdict(company, evidenceSection(req.Prompt, "Research evidence"))
	default:
		out = "I am not sure what you are asking."
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []llm.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.recordCall(r, "")
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.recordCall(r, "agent")

	var company string
	var toolOutput strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleUser:
			if company == "" {
				company = promptField(m.Content.Flatten(), "Company")
			}
		case llm.RoleTool:
			toolOutput.WriteString(m.Content.Flatten())
			toolOutput.WriteString("\n")
		}
	}

	if toolOutput.Len() == 0 {
		args, _ := json.Marshal(map[string]any{"query": quote(company) + " facility", "count": 3})
		writeJSON(w, http.StatusOK, map[string]any{"message": llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				Function: llm.FunctionCall{Name: "web_search", Arguments: args},
			}},
		}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": llm.Message{
		Role:    llm.RoleAssistant,
		Content: llm.Text(s.verdict(company, toolOutput.String())),
	}})
}

// verdict answers with the site's type when its evidence reached the model.
func (s *Server) verdict(company, evidence string) string {
	site, ok := s.site(slugify(company))
	resp := map[string]string{
		"site_type":  "unknown",
		"confidence": "low",
		"notes":      "insufficient evidence",
	}
	if ok && strings.Contains(evidence, firstSentence(site.Evidence)) {
		resp = map[string]string{
			"site_type":  site.SiteType,
			"confidence": site.Confidence,
			"notes":      "matched facility description [1]",
		}
	}
	b, _ := json.Marshal(resp)
	return "Here is my answer:\n" + string(b)
}

func (s *Server) site(slug string) (Site, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[slug]
	return site, ok
}

func (s *Server) sortedSites() []Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Company < out[j].Company })
	return out
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "research planner"):
		return "plan"
	case strings.Contains(prompt, "Summarize the key operational clues"):
		return "summarize"
	case strings.Contains(prompt, "classifying the type of business facility"):
		return "classify"
	default:
		return "other"
	}
}

func promptField(prompt, name string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if v, ok := strings.CutPrefix(line, name+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func evidenceSection(prompt, marker string) string {
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	return prompt[i+len(marker):]
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

func quote(s string) string {
	return `"` + s + `"`
}

func baseURL(r *http.Request) string {
	return "http://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
