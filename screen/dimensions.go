package screen

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// DefaultSize is used for any dimension that cannot be read from a screen.
const DefaultSize = 100

// ReadDimensions returns the root width and height of a .bob file. A
// missing or malformed element falls back to DefaultSize; the returned
// error is non-nil only when the document itself cannot be read.
func ReadDimensions(path string) (width, height int, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return DefaultSize, DefaultSize, fmt.Errorf("read %s: %w", path, err)
	}
	root := doc.Root()
	if root == nil {
		return DefaultSize, DefaultSize, fmt.Errorf("read %s: empty document", path)
	}
	return dimension(root, "width"), dimension(root, "height"), nil
}

func dimension(el *etree.Element, tag string) int {
	child := el.SelectElement(tag)
	if child == nil {
		return DefaultSize
	}
	return parseInt(child.Text(), DefaultSize)
}

// parseInt accepts integral and decimal text such as "120" or "120.0".
func parseInt(text string, fallback int) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fallback
	}
	return int(d.Round(0).IntPart())
}
