package llm

import "encoding/json"

// maxInfoChars bounds how much supporting info is appended to a prompt.
const maxInfoChars = 2000

// Info is a supporting-info payload attached to a completion call. Each
// variant defines its own serialization into prompt text.
type Info interface {
	// render produces the prompt text for this payload. The query is the
	// user prompt the payload accompanies; only the Searchable variant
	// uses it.
	render(query string) string
}

// RawInfo is a plain text payload.
type RawInfo string

func (r RawInfo) render(string) string {
	return truncate(string(r), maxInfoChars)
}

// Snippet is one retrieved reference excerpt.
type Snippet struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// SnippetInfo is a ranked sequence of retrieved snippets, serialized as
// JSON so sources stay attributable inside the prompt.
type SnippetInfo []Snippet

func (s SnippetInfo) render(string) string {
	data, err := json.Marshal([]Snippet(s))
	if err != nil {
		return ""
	}
	return truncate(string(data), maxInfoChars)
}

// Searcher is the retrieval capability consumed by SearchInfo. The
// pipeline never depends on a concrete index implementation.
type Searcher interface {
	Search(query string) string
}

// SearchInfo defers retrieval to a Searcher, queried with the prompt the
// payload accompanies.
type SearchInfo struct {
	Searcher Searcher
}

func (s SearchInfo) render(query string) string {
	if s.Searcher == nil {
		return ""
	}
	return truncate(s.Searcher.Search(query), maxInfoChars)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
