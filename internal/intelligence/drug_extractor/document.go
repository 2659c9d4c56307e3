package drug_extractor

import (
	"html"
	"regexp"
	"strings"
)

var (
	documentPattern = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>|<ARTICLE title="[^"]*">`)
	tbodyPattern    = regexp.MustCompile(`(?s)<tbody>.*?</tbody>`)
)

// CleanDocument reduces a registry XML document (EE/UD/NB/PN_DOC_DATA) to
// its readable parts: the trimmed text of every CDATA section and every
// ARTICLE title tag as-is, in document order, one per line. Table bodies
// are removed afterwards. Entity-encoded markup is decoded first.
func CleanDocument(content string) string {
	if content == "" {
		return ""
	}
	if strings.Contains(content, "&lt;") {
		content = html.UnescapeString(content)
	}

	matches := documentPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(m[0], "<![CDATA[") {
			parts = append(parts, strings.TrimSpace(m[1]))
			continue
		}
		parts = append(parts, m[0])
	}
	return tbodyPattern.ReplaceAllString(strings.Join(parts, "\n"), "")
}
