package sanitize

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var (
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	headCruftRe = regexp.MustCompile(`(?is)<(?:style|script|head)[^>]*>.*?</(?:style|script|head)>`)
)

// TextFromHTML renders an HTML email body to plain text. Used when an agent
// reply carries no text/plain part. Conversion failures fall back to a crude
// tag strip so the pipeline stays total.
func TextFromHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		stripped := headCruftRe.ReplaceAllString(html, "")
		text = tagRe.ReplaceAllString(stripped, "")
	}
	return strings.TrimSpace(text)
}
