package chunk

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
	htmlScriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
)

// htmlEntities covers the entities that actually show up in documentation.
var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// Preprocess normalizes raw document content for chunking. HTML files get
// their markup stripped; everything else passes through unchanged.
func Preprocess(content []byte, sourcePath string) string {
	text := string(content)
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".html", ".htm":
		text = htmlScriptPattern.ReplaceAllString(text, "")
		text = htmlTagPattern.ReplaceAllString(text, "\n")
		text = htmlEntities.Replace(text)
		text = blankRunPattern.ReplaceAllString(text, "\n\n")
	}
	return text
}
