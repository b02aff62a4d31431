package webpay

import (
	"strings"

	"golang.org/x/net/html"
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// StripTags returns the text content of s with all markup removed and the contents of
// script and style elements dropped. Angle brackets and ampersands left in the text stay
// escaped, so the result never contains a tag.
func StripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is all there is.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				textEscaper.WriteString(&b, string(z.Text()))
			}
		case html.StartTagToken:
			if isRawText(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
