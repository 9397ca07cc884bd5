package htmldoc

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/jroosing/hydrablock/internal/cosmetic"
)

// Element wraps one element node.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ cosmetic.Element = (*Element)(nil)

// ID implements cosmetic.Element.
func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, "id")
}

// Classes implements cosmetic.Element.
func (e *Element) Classes() []string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return strings.Fields(attr(e.node, "class"))
}

// Tag implements cosmetic.Element.
func (e *Element) Tag() string {
	return strings.ToLower(e.node.Data)
}

// Parent implements cosmetic.Element.
func (e *Element) Parent() cosmetic.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

// Children implements cosmetic.Element.
func (e *Element) Children() []cosmetic.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var out []cosmetic.Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// Hide implements cosmetic.Element.
func (e *Element) Hide() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, "style", mergeStyle(attr(e.node, "style"), "display", "none !important"))
	setAttr(e.node, cosmetic.BlockedAttr, "true")
}

// Hidden implements cosmetic.Element.
func (e *Element) Hidden() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, cosmetic.BlockedAttr) == "true"
}

// SetOutline implements cosmetic.Element.
func (e *Element) SetOutline(on bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	val := ""
	if on {
		val = cosmetic.HighlightStyle
	}
	setAttr(e.node, "style", mergeStyle(attr(e.node, "style"), "outline", val))
}

// Attr returns the named attribute.
func (e *Element) Attr(key string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, key)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// setAttr sets key, removing it when val is empty.
func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			if val == "" {
				n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			} else {
				n.Attr[i].Val = val
			}
			return
		}
	}
	if val != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
}

// mergeStyle sets or removes one declaration in an inline style.
func mergeStyle(style, prop, val string) string {
	var decls []string
	for _, d := range strings.Split(style, ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		name, _, _ := strings.Cut(d, ":")
		if strings.EqualFold(strings.TrimSpace(name), prop) {
			continue
		}
		decls = append(decls, d)
	}
	if val != "" {
		decls = append(decls, prop+": "+val)
	}
	return strings.Join(decls, "; ")
}
