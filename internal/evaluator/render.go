package evaluator

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	cellAlign = regexp.MustCompile(`^(left|right|center|justify)$`)
	tableSize = regexp.MustCompile(`^[0-9]{1,4}(%|px)?$`)
)

// newRenderPolicy allows user-generated content plus the table markup that
// rendered submissions are built from.
func newRenderPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	p.AllowAttrs("border", "cellpadding", "cellspacing").Matching(bluemonday.Integer).OnElements("table")
	p.AllowAttrs("width").Matching(tableSize).OnElements("table", "td", "th")
	p.AllowAttrs("align").Matching(cellAlign).OnElements("td", "th", "tr")
	p.AllowStyles("width", "border", "border-collapse", "padding", "text-align", "vertical-align").
		OnElements("table", "td", "th", "tr")
	return p
}
