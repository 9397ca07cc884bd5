package cosmetic

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jroosing/hydrablock/internal/messaging"
)

// ErrPickerInactive is returned by Click when the picker is not running.
var ErrPickerInactive = errors.New("element picker is not active")

// ElementBlocker persists a picked selector.
type ElementBlocker interface {
	BlockElement(ctx context.Context, domain, selector string) error
}

// ChannelBlocker persists picked selectors with a blockElement message.
type ChannelBlocker struct {
	Channel messaging.Channel
}

// BlockElement implements ElementBlocker.
func (c ChannelBlocker) BlockElement(ctx context.Context, domain, selector string) error {
	return c.Channel.Send(ctx, messaging.ActionBlockElement, messaging.BlockElementRequest{
		Domain:   domain,
		Selector: selector,
	}, nil)
}

// Picker lets the user point at an element and block it.
//
// Inactive until Start. While active, Hover outlines the element under the
// pointer, Click blocks it and Escape cancels.
type Picker struct {
	doc     Document
	blocker ElementBlocker
	logger  *slog.Logger

	mu          sync.Mutex
	active      bool
	highlighted Element
}

// NewPicker creates a picker for doc.
func NewPicker(doc Document, blocker ElementBlocker, logger *slog.Logger) *Picker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Picker{doc: doc, blocker: blocker, logger: logger}
}

// Start activates the picker.
func (p *Picker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return
	}
	p.active = true
	if o, ok := p.doc.(Overlay); ok {
		o.ShowPickerUI()
	}
}

// Stop deactivates the picker and clears the highlight.
func (p *Picker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Picker) stopLocked() {
	if !p.active {
		return
	}
	p.active = false
	if p.highlighted != nil {
		p.highlighted.SetOutline(false)
		p.highlighted = nil
	}
	if o, ok := p.doc.(Overlay); ok {
		o.HidePickerUI()
	}
}

// Active reports whether the picker is running.
func (p *Picker) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Hover moves the highlight to el.
func (p *Picker) Hover(el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || el == nil || isOverlay(el) {
		return
	}
	if p.highlighted != nil {
		p.highlighted.SetOutline(false)
	}
	p.highlighted = el
	el.SetOutline(true)
}

// Click blocks el: its selector is persisted, el is hidden and the picker
// stops. The selector is returned even when persisting fails.
func (p *Picker) Click(ctx context.Context, el Element) (string, error) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return "", ErrPickerInactive
	}
	if el == nil || isOverlay(el) {
		p.mu.Unlock()
		return "", nil
	}
	selector := SelectorFor(el)
	p.stopLocked()
	el.Hide()
	p.mu.Unlock()

	domain := p.doc.Hostname()
	if err := p.blocker.BlockElement(ctx, domain, selector); err != nil {
		p.logger.Warn("Failed to persist picked element", "domain", domain, "selector", selector, "error", err)
		return selector, err
	}
	p.logger.Info("Element blocked", "domain", domain, "selector", selector)
	return selector, nil
}

// Key handles a key press. Escape cancels the picker.
func (p *Picker) Key(key string) {
	if key == "Escape" {
		p.Stop()
	}
}

func isOverlay(el Element) bool {
	for e := el; e != nil; e = e.Parent() {
		if e.ID() == PickerOverlayID {
			return true
		}
	}
	return false
}
