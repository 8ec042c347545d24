package rag

import (
	"fmt"
	"strings"

	"ragdocs/internal/models"
)

const systemInstruction = "You are a helpful assistant. Answer the question using only the numbered context passages below. " +
	"Cite passages by their number, for example [1]. If the context does not contain the answer, say that you do not know."

type dedupeKey struct {
	documentID string
	source     string
	page       int
	hasPage    bool
}

// Dedupe keeps the first, highest ranked, result for each
// (document_id, source, page) so one page is never cited twice.
func Dedupe(results []models.RetrievalResult) []models.RetrievalResult {
	seen := make(map[dedupeKey]struct{}, len(results))
	out := make([]models.RetrievalResult, 0, len(results))
	for _, r := range results {
		k := dedupeKey{documentID: r.DocumentID, source: r.Source}
		if r.Page != nil {
			k.page, k.hasPage = *r.Page, true
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// FormatContext numbers passages from 1 in rank order.
func FormatContext(results []models.RetrievalResult) (string, []models.Source) {
	var b strings.Builder
	sources := make([]models.Source, 0, len(results))
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(r.Text))
		sources = append(sources, models.Source{
			DocumentID: r.DocumentID,
			Source:     r.Source,
			Page:       r.Page,
			Score:      r.Score,
		})
	}
	return b.String(), sources
}

func RenderPrompt(contextBlock string, history []models.ChatTurn, query string) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextBlock)
	if turns := renderHistory(history); turns != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(turns)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func renderHistory(history []models.ChatTurn) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(t.Role))
		switch role {
		case "assistant":
			role = "Assistant"
		case "system":
			role = "System"
		default:
			role = "User"
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n")
}
