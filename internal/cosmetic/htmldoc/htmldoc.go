// Package htmldoc implements cosmetic.Document over a parsed HTML tree.
package htmldoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/jroosing/hydrablock/internal/cosmetic"
)

// Document is an in-memory page. Mutations made through AppendChild are
// reported to observers.
//
// Thread-safe for concurrent use.
type Document struct {
	host string

	mu        sync.Mutex
	root      *html.Node
	elems     map[*html.Node]*Element
	selectors map[string]cascadia.Selector
	observers map[int]func([]cosmetic.Element)
	nextObs   int
}

var _ cosmetic.Document = (*Document)(nil)
var _ cosmetic.Overlay = (*Document)(nil)

// Parse reads an HTML document served from host.
func Parse(r io.Reader, host string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{
		host:      strings.ToLower(host),
		root:      root,
		elems:     make(map[*html.Node]*Element),
		selectors: make(map[string]cascadia.Selector),
		observers: make(map[int]func([]cosmetic.Element)),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s, host string) (*Document, error) {
	return Parse(strings.NewReader(s), host)
}

// Hostname implements cosmetic.Document.
func (d *Document) Hostname() string { return d.host }

// Root implements cosmetic.Document. It returns the <html> element.
func (d *Document) Root() cosmetic.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// QueryAll implements cosmetic.Document.
func (d *Document) QueryAll(selector string) ([]cosmetic.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, ok := d.selectors[selector]
	if !ok {
		compiled, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", cosmetic.ErrInvalidSelector, selector, err)
		}
		sel = compiled
		d.selectors[selector] = sel
	}

	nodes := sel.MatchAll(d.root)
	out := make([]cosmetic.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

// Observe implements cosmetic.Document.
func (d *Document) Observe(fn func(added []cosmetic.Element)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// AppendChild parses fragment and appends its nodes to parent, then notifies
// observers with the inserted elements.
func (d *Document) AppendChild(parent cosmetic.Element, fragment string) ([]cosmetic.Element, error) {
	p, ok := parent.(*Element)
	if !ok || p.doc != d {
		return nil, fmt.Errorf("parent does not belong to this document")
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), p.node)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	d.mu.Lock()
	var added []cosmetic.Element
	for _, n := range nodes {
		p.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	observers := make([]func([]cosmetic.Element), 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	if len(added) > 0 {
		for _, fn := range observers {
			fn(added)
		}
	}
	return added, nil
}

// ShowPickerUI implements cosmetic.Overlay.
func (d *Document) ShowPickerUI() {
	body := d.body()
	if body == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findByID(cosmetic.PickerOverlayID) != nil {
		return
	}
	ui := &html.Node{
		Type: html.ElementNode,
		Data: "div",
		Attr: []html.Attribute{{Key: "id", Val: cosmetic.PickerOverlayID}},
	}
	ui.AppendChild(&html.Node{Type: html.TextNode, Data: "Element Picker Active. Click on an element to block it, press ESC to cancel."})
	body.node.AppendChild(ui)
}

// HidePickerUI implements cosmetic.Overlay.
func (d *Document) HidePickerUI() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.findByID(cosmetic.PickerOverlayID); n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
		delete(d.elems, n)
	}
}

// Render serialises the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String returns the rendered document.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) cosmetic.Element {
	els, err := d.QueryAll(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return els[0]
}

func (d *Document) body() *Element {
	if el, ok := d.First("body").(*Element); ok {
		return el
	}
	return nil
}

func (d *Document) findByID(id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return found
}

// wrap returns the unique Element for n. Callers hold d.mu.
func (d *Document) wrap(n *html.Node) *Element {
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elems[n] = el
	return el
}
