package search

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClassifierCacheSize bounds the classification LRU cache.
const DefaultClassifierCacheSize = 1000

// QueryKind is the classifier's verdict on a query.
type QueryKind int

const (
	// KindMixed is the default for queries with no strong signal.
	KindMixed QueryKind = iota

	// KindCodeLike marks identifier-heavy queries best served lexically.
	KindCodeLike

	// KindNaturalLanguage marks interrogative prose queries.
	KindNaturalLanguage
)

// Compiled at package init.
var (
	// Qualified identifiers and call syntax: pkg::Name, Find(), a.b.c
	codeSyntaxPattern = regexp.MustCompile(`(::|\(\)|->|\w+\.\w+\.\w+)`)

	// File paths with a known extension.
	filePathPattern = regexp.MustCompile(`(?i)[\w\-./\\]+\.(md|markdown|html|htm|txt|rst|go|py|js|ts|rs|java|c|cpp|h|rb|sh|yaml|yml|json|toml)\b`)

	// Identifier casings, matched per word.
	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern     = regexp.MustCompile(`^([A-Z][a-z0-9]+){2,}$`)
	snakeCasePattern      = regexp.MustCompile(`^[A-Za-z]+(_[A-Za-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)

	// Quoted exact phrases.
	quotedPattern = regexp.MustCompile(`^["'].*["']$`)

	// Interrogative and imperative prose starters.
	naturalLanguagePattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|who|can|could|does|do|is|are|should|explain|describe|show|tell)\b`)
)

// Classifier routes auto-strategy queries by regex pattern matching,
// with an LRU cache over normalized query text.
type Classifier struct {
	cache *lru.Cache[string, QueryKind]
}

// NewClassifier creates a Classifier with the default cache size.
func NewClassifier() *Classifier {
	cache, _ := lru.New[string, QueryKind](DefaultClassifierCacheSize)
	return &Classifier{cache: cache}
}

// Classify determines the query kind. Results are cached.
func (c *Classifier) Classify(query string) QueryKind {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return KindMixed
	}

	if kind, ok := c.cache.Get(key); ok {
		return kind
	}

	kind := classifyQuery(strings.TrimSpace(query))
	c.cache.Add(key, kind)
	return kind
}

func classifyQuery(query string) QueryKind {
	if isCodeLike(query) {
		return KindCodeLike
	}
	if naturalLanguagePattern.MatchString(query) {
		return KindNaturalLanguage
	}
	return KindMixed
}

// isCodeLike checks for identifier punctuation, paths, quoting, or
// identifier-cased words.
func isCodeLike(query string) bool {
	if codeSyntaxPattern.MatchString(query) ||
		filePathPattern.MatchString(query) ||
		quotedPattern.MatchString(query) {
		return true
	}

	for _, word := range strings.Fields(query) {
		if camelCasePattern.MatchString(word) ||
			pascalCasePattern.MatchString(word) ||
			snakeCasePattern.MatchString(word) ||
			screamingSnakePattern.MatchString(word) {
			return true
		}
	}
	return false
}
