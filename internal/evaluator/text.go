package evaluator

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements that end a line in the plain-text rendering
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Table: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var flattenWhitespace = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// plainText renders sanitized markup as text: one line per block, table
// cells separated by tabs.
func plainText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered html: %w", err)
	}

	var sb strings.Builder
	for _, n := range doc.Find("body").Nodes {
		writeText(&sb, n)
	}
	return tidyLines(sb.String()), nil
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(flattenWhitespace.Replace(n.Data))
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}

	if n.Type != html.ElementNode {
		return
	}
	switch {
	case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
		sb.WriteByte('\t')
	case blockElements[n.DataAtom]:
		sb.WriteByte('\n')
	}
}

func tidyLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		var cells []string
		for _, cell := range strings.Split(line, "\t") {
			if cell = strings.Join(strings.Fields(cell), " "); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, "\t"))
		}
	}
	return strings.Join(lines, "\n")
}
