// Package summarize condenses fetched evidence into a short narrative for the
// classification prompt.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/util"
)

// NoEvidenceText is the summary used when nothing was collected.
const NoEvidenceText = "No supporting evidence collected yet."

// Summary is a best-effort narrative of the evidence. Text is never empty.
type Summary struct {
	Text        string
	SourceCount int
	UsedModel   bool
	Raw         string
}

type Options struct {
	MaxDocuments   int
	MaxCharsPerDoc int
}

type Summarizer struct {
	client llm.Client
	model  string
	opts   Options
	logger *zap.Logger
}

func New(client llm.Client, model string, opts Options, logger *zap.Logger) *Summarizer {
	if opts.MaxDocuments < 1 {
		opts.MaxDocuments = 3
	}
	if opts.MaxCharsPerDoc < 200 {
		opts.MaxCharsPerDoc = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{client: client, model: model, opts: opts, logger: logger}
}

// Summarize asks the model for at most three bullets citing document numbers.
// A failed or blank model response degrades to an extractive summary.
func (s *Summarizer) Summarize(ctx context.Context, company, address string, docs []research.EvidenceDocument) Summary {
	if len(docs) == 0 {
		return Summary{Text: NoEvidenceText}
	}
	used := docs
	if len(used) > s.opts.MaxDocuments {
		used = used[:s.opts.MaxDocuments]
	}

	raw, err := s.client.Generate(ctx, s.model, s.prompt(company, address, used), llm.Options{Temperature: 0.15, NumCtx: 4096})
	text := strings.TrimSpace(raw)
	if err != nil || text == "" {
		if err != nil {
			logging.FromContext(ctx, s.logger).Warn("summarize: request failed; using extractive summary",
				zap.String("error", util.RedactSecrets(err.Error())),
			)
		}
		fb := Fallback(used)
		return Summary{Text: fb, SourceCount: len(used), Raw: fb}
	}
	return Summary{Text: text, SourceCount: len(used), UsedModel: true, Raw: raw}
}

// Fallback joins "{i}. {title} — {snippet}" for each document.
func Fallback(docs []research.EvidenceDocument) string {
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		parts = append(parts, fmt.Sprintf("%d. %s — %s", i+1, d.Title, d.Snippet))
	}
	if len(parts) == 0 {
		return "Evidence available but summarizer failed."
	}
	return strings.Join(parts, "; ")
}

func (s *Summarizer) prompt(company, address string, docs []research.EvidenceDocument) string {
	if company == "" {
		company = "Unknown company"
	}
	if address == "" {
		address = "Unknown address"
	}
	blocks := make([]string, 0, len(docs))
	for i, d := range docs {
		blocks = append(blocks, fmt.Sprintf("Document %d: %s\nURL: %s\nSnippet: %s\nContent: %s",
			i+1, d.Title, d.URL, d.Snippet, util.Truncate(d.Content, s.opts.MaxCharsPerDoc)))
	}
	return "You are assisting an industrial-site classification pipeline." +
		" Summarize the key operational clues from the following research documents in 3 bullet points or less." +
		" Each bullet should cite the document number when referencing facts. Keep it under 120 words.\n\n" +
		"Company: " + company + "\n" +
		"Address: " + address + "\n\n" +
		"Research Documents:\n" + strings.Join(blocks, "\n\n") + "\n\n" +
		"Return plain text bullet(s); do not emit JSON."
}
