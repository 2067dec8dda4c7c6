package search

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/agentic-research/tarim/api"
)

// StripHTML returns the text content of an HTML fragment. Input that does
// not parse is returned unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return strings.TrimSpace(buf.String())
}

const infoPreview = 200

// Format writes a human readable block for one result.
func Format(w io.Writer, e *api.FlatEntry, lang api.Lang, showActs bool) {
	nc := e.NC
	if nc == "" {
		nc = "N/A"
	}
	name := e.Name(lang)

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(w, "NC Code: %s\n", nc)
	fmt.Fprintf(w, "Name: %s\n", name)
	if path := e.Path(lang); path != "" && path != name {
		fmt.Fprintf(w, "Path: %s\n", path)
	}
	if info := StripHTML(e.Info(lang)); info != "" {
		runes := []rune(info)
		if len(runes) > infoPreview {
			info = string(runes[:infoPreview]) + "..."
		}
		fmt.Fprintf(w, "\nInfo: %s\n", info)
	}
	if e.ChildrenCount > 0 {
		fmt.Fprintf(w, "Children: %d subcategories\n", e.ChildrenCount)
	}
	if e.TaxInfo != nil {
		fmt.Fprintf(w, "VAT: %s  Excise: %s\n", rate(e.TaxInfo.VAT), rate(e.TaxInfo.Excise))
	}
	if showActs {
		for _, a := range []struct {
			label string
			n     int
		}{
			{"Import Acts", len(e.ImportActs)},
			{"Export Acts", len(e.ExportActs)},
			{"Transit Acts", len(e.TransitActs)},
		} {
			if a.n > 0 {
				fmt.Fprintf(w, "%s: %d\n", a.label, a.n)
			}
		}
	}
}

// rate prints a tax rate that may be a string, a number or absent.
func rate(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
