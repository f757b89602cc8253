package text

import "regexp"

var (
	reEditLink = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)\s*$`)
	reTOC      = regexp.MustCompile(`(?mi)^#{1,3}\s+(?:table of )?contents?\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	reBadge    = regexp.MustCompile(`(?m)^\s*(?:\[!\[[^\]]*\]\([^\)]*\)\]\([^\)]*\)\s*)+$`)
)

// CleanMarkdown strips documentation boilerplate that would pollute the
// embeddings: "edit this page" links, link-only table-of-contents sections
// and badge rows. Anything borderline is left alone.
func CleanMarkdown(text string) string {
	text = reEditLink.ReplaceAllString(text, "")
	text = reTOC.ReplaceAllString(text, "")
	text = reBadge.ReplaceAllString(text, "")
	return text
}
