// Package cosmetic hides page elements matched by cosmetic selectors and
// implements the interactive element picker.
//
// Both work against the Document and Element interfaces so the same logic
// drives a parsed HTML tree and a live browser page.
package cosmetic

import "errors"

// Hiding attributes applied to matched elements.
const (
	HiddenStyle     = "display: none !important"
	BlockedAttr     = "data-blocked"
	HighlightStyle  = "2px solid #DC3545"
	PickerOverlayID = "hydrablock-picker-ui"
)

// ErrInvalidSelector is returned by Document.QueryAll for selectors that do
// not parse.
var ErrInvalidSelector = errors.New("invalid selector")

// Element is one node of a page.
type Element interface {
	// ID returns the id attribute, or "".
	ID() string
	// Classes returns the class list in document order.
	Classes() []string
	// Tag returns the lower-case tag name.
	Tag() string
	// Parent returns the parent element, or nil for the root element.
	Parent() Element
	// Children returns the element children in document order.
	Children() []Element
	// Hide applies HiddenStyle and marks the element with BlockedAttr.
	Hide()
	// Hidden reports whether Hide was applied.
	Hidden() bool
	// SetOutline toggles the picker highlight.
	SetOutline(on bool)
}

// Document is one page.
type Document interface {
	// Hostname is the page's host, used to select domain rules.
	Hostname() string
	// Root returns the root element.
	Root() Element
	// QueryAll returns every element matching selector. It wraps
	// ErrInvalidSelector when selector does not parse.
	QueryAll(selector string) ([]Element, error)
	// Observe calls fn with every batch of inserted elements until the
	// returned cancel func is called.
	Observe(fn func(added []Element)) (cancel func())
}

// Overlay is implemented by documents that can show the picker banner.
type Overlay interface {
	ShowPickerUI()
	HidePickerUI()
}
