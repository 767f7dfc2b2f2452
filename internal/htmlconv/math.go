package htmlconv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	mathTag         = "oppia-noninteractive-math"
	rawLatexAttr    = "raw_latex-with-value"
	mathContentAttr = "math_content-with-value"
)

// The RTE stores attribute values JSON-encoded and then HTML-escaped with
// this fixed set of entities.
var (
	rteEscaper   = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "'", "&#39;", "<", "&lt;", ">", "&gt;")
	rteUnescaper = strings.NewReplacer("&quot;", `"`, "&#39;", "'", "&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// AddMathContentToMathRTEComponents upgrades every math rich-text component
// in fragment from the raw_latex attribute to the math_content attribute
// ({"raw_latex": ..., "svg_filename": ""}).
//
// Components with an empty raw_latex value, or with neither attribute, are
// removed. A raw_latex value that is not a JSON string is an error.
// Fragments without math components are returned unchanged.
func AddMathContentToMathRTEComponents(fragment string) (string, error) {
	if !strings.Contains(fragment, mathTag) {
		return fragment, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	var mathNodes []*html.Node
	collectElements(body, mathTag, &mathNodes)

	for _, n := range mathNodes {
		rawLatex, hasRaw := attr(n, rawLatexAttr)
		_, hasContent := attr(n, mathContentAttr)

		switch {
		case hasRaw && rawLatex == "":
			n.Parent.RemoveChild(n)

		case hasRaw:
			var latex string
			if err := json.Unmarshal([]byte(rteUnescaper.Replace(rawLatex)), &latex); err != nil {
				return "", fmt.Errorf("invalid raw_latex string found in the math tag: %w", err)
			}
			encoded, err := mathContentJSON(latex)
			if err != nil {
				return "", err
			}
			removeAttr(n, rawLatexAttr)
			n.Attr = append(n.Attr, html.Attribute{Key: mathContentAttr, Val: rteEscaper.Replace(encoded)})

		case hasContent:
			// Already upgraded.

		default:
			n.Parent.RemoveChild(n)
		}
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render html: %w", err)
		}
	}
	return strings.ReplaceAll(buf.String(), "<br/>", "<br>"), nil
}

// mathContentJSON encodes the math content dict with sorted keys, ", " and
// ": " separators and non-ASCII characters escaped, matching the encoding
// already stored in existing content.
func mathContentJSON(rawLatex string) (string, error) {
	latex, err := asciiJSONString(rawLatex)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"raw_latex": %s, "svg_filename": ""}`, latex), nil
}

func asciiJSONString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("failed to encode raw_latex: %w", err)
	}
	encoded := strings.TrimSuffix(buf.String(), "\n")

	var out strings.Builder
	for _, r := range encoded {
		switch {
		case r < utf8.RuneSelf:
			out.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.String(), nil
}

func collectElements(n *html.Node, tag string, out *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			*out = append(*out, c)
		}
		collectElements(c, tag, out)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
