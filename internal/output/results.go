package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/search"
)

// snippetMaxChars bounds the text excerpt shown per result in text
// output.
const snippetMaxChars = 280

// jsonResult is the stable JSON shape for one search result.
type jsonResult struct {
	Rank          int      `json:"rank"`
	ChunkID       string   `json:"chunk_id"`
	SourcePath    string   `json:"source_path"`
	Heading       string   `json:"heading,omitempty"`
	Position      int      `json:"position"`
	Text          string   `json:"text"`
	FusedScore    float64  `json:"fused_score"`
	LexicalScore  *float64 `json:"lexical_score,omitempty"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`
	MatchedTerms  []string `json:"matched_terms,omitempty"`
}

// jsonEnvelope wraps the result list with query context.
type jsonEnvelope struct {
	Query    string       `json:"query"`
	Strategy string       `json:"strategy"`
	Count    int          `json:"count"`
	Results  []jsonResult `json:"results"`
}

// WriteResults renders search results in the given format.
func WriteResults(out io.Writer, query string, results []*search.Result, format Format) error {
	if format == FormatJSON {
		return writeJSON(out, query, results)
	}
	return writeText(out, query, results)
}

func writeJSON(out io.Writer, query string, results []*search.Result) error {
	env := jsonEnvelope{
		Query:   query,
		Count:   len(results),
		Results: make([]jsonResult, len(results)),
	}
	if len(results) > 0 {
		env.Strategy = string(results[0].Strategy)
	}

	for i, r := range results {
		jr := jsonResult{
			Rank:         r.Rank,
			ChunkID:      r.ChunkID,
			SourcePath:   r.SourcePath,
			Heading:      r.Heading,
			Position:     r.Position,
			Text:         r.Text,
			FusedScore:   r.FusedScore,
			MatchedTerms: r.MatchedTerms,
		}
		if r.HasLexical {
			score := r.LexicalScore
			jr.LexicalScore = &score
		}
		if r.HasSemantic {
			score := r.SemanticScore
			jr.SemanticScore = &score
		}
		env.Results[i] = jr
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

func writeText(out io.Writer, query string, results []*search.Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintf(out, "No results for %q.\n", query)
		return err
	}

	for _, r := range results {
		location := r.SourcePath
		if r.Heading != "" {
			location += " › " + r.Heading
		}
		if _, err := fmt.Fprintf(out, "%d. %s\n", r.Rank, location); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "   %s\n", scoreLine(r)); err != nil {
			return err
		}
		for _, line := range snippetLines(r.Text) {
			if _, err := fmt.Fprintf(out, "   %s\n", line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	return nil
}

// scoreLine formats the per-side score breakdown for one result.
func scoreLine(r *search.Result) string {
	parts := []string{fmt.Sprintf("score %.4f", r.FusedScore)}
	if r.HasLexical {
		parts = append(parts, fmt.Sprintf("lexical %.4f", r.LexicalScore))
	}
	if r.HasSemantic {
		parts = append(parts, fmt.Sprintf("semantic %.4f", r.SemanticScore))
	}
	if len(r.MatchedTerms) > 0 {
		parts = append(parts, "matched: "+strings.Join(r.MatchedTerms, ", "))
	}
	return strings.Join(parts, "  ·  ")
}

// snippetLines truncates chunk text to a short excerpt.
func snippetLines(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) > snippetMaxChars {
		cut := strings.LastIndexByte(text[:snippetMaxChars], ' ')
		if cut < snippetMaxChars/2 {
			cut = snippetMaxChars
		}
		text = text[:cut] + "…"
	}
	return strings.Split(text, "\n")
}
