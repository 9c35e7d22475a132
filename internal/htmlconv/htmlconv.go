// Package htmlconv turns HTML documents, chiefly Google Docs exports, into
// compact markdown suitable for a model's context window.
package htmlconv

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	tagPattern      = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
	// Google Docs exports wrap outbound links in a redirect.
	googleRedirect = regexp.MustCompile(`https://www\.google\.com/url\?q=([^&\s)]+)[^\s)]*`)
)

// minTags is how many tags plain text may contain before it is treated as HTML.
const minTags = 3

// droppedElements never carry document content.
var droppedElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
}

// LooksLikeHTML guesses whether input is markup rather than prose.
func LooksLikeHTML(input string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		return true
	}

	tags := len(tagPattern.FindAllStringIndex(input, minTags))
	if tags >= minTags {
		return true
	}
	if tags < 2 {
		return false
	}
	for _, marker := range []string{"<body", "<div", "<table", "<ul>", "<ol>", "<h1", "<h2"} {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return false
}

// ToMarkdown converts an HTML document to markdown.
func ToMarkdown(input string) (string, error) {
	cleaned, err := strip(input)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return tidy(md), nil
}

// ConvertIfHTML converts input when it looks like HTML and otherwise returns
// it unchanged. The flag reports whether a conversion happened.
func ConvertIfHTML(input string) (string, bool) {
	if !LooksLikeHTML(input) {
		return input, false
	}
	md, err := ToMarkdown(input)
	if err != nil {
		return input, false
	}
	return md, true
}

func strip(input string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return "", err
	}
	prune(doc)

	root := doc
	if body := find(doc, atom.Body); body != nil {
		root = body
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prune(n *html.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == html.ElementNode && droppedElements[child.DataAtom] {
			n.RemoveChild(child)
		} else {
			prune(child)
		}
		child = next
	}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func tidy(md string) string {
	md = googleRedirect.ReplaceAllStringFunc(md, func(link string) string {
		m := googleRedirect.FindStringSubmatch(link)
		if len(m) < 2 {
			return link
		}
		return unescapeQuery(m[1])
	})
	md = blankRunPattern.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

func unescapeQuery(s string) string {
	r := strings.NewReplacer("%3A", ":", "%2F", "/", "%3F", "?", "%3D", "=", "%26", "&", "%23", "#")
	return r.Replace(s)
}
