package cosmetic

import (
	"strconv"
	"strings"
)

// SelectorFor builds a selector for el: "#id" when it has an id, ".a.b" when
// it has classes, otherwise the parent's selector followed by
// "> tag:nth-child(i)". The root element yields its tag name.
func SelectorFor(el Element) string {
	if id := el.ID(); id != "" {
		return "#" + EscapeIdent(id)
	}

	var classes []string
	for _, c := range el.Classes() {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, EscapeIdent(c))
		}
	}
	if len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}

	tag := strings.ToLower(el.Tag())
	parent := el.Parent()
	if parent == nil {
		return tag
	}
	index := 1
	for i, c := range parent.Children() {
		if c == el {
			index = i + 1
			break
		}
	}
	return SelectorFor(parent) + " > " + tag + ":nth-child(" + strconv.Itoa(index) + ")"
}

// EscapeIdent escapes s for use as a CSS identifier, following CSSOM
// serialize-an-identifier.
func EscapeIdent(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('�')
		case (r >= 0x01 && r <= 0x1F) || r == 0x7F:
			writeCodePoint(&b, r)
		case i == 0 && r >= '0' && r <= '9':
			writeCodePoint(&b, r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			writeCodePoint(&b, r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeCodePoint(b *strings.Builder, r rune) {
	b.WriteByte('\\')
	b.WriteString(strconv.FormatInt(int64(r), 16))
	b.WriteByte(' ')
}
