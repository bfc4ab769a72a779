package screen

import "sort"

// LayoutOptions controls how widgets are packed into columns.
type LayoutOptions struct {
	MaxHeight     int
	SpacingX      int
	SpacingY      int
	ColumnSpacing int
	GroupPadding  int
}

// DefaultLayout returns the packing parameters used for generated screens.
func DefaultLayout() LayoutOptions {
	return LayoutOptions{
		MaxHeight:     800,
		SpacingX:      20,
		SpacingY:      30,
		ColumnSpacing: 30,
		GroupPadding:  50,
	}
}

type sizeKey struct {
	height, width int
}

type level struct {
	y       int
	widgets []Widget
}

// Layout packs widgets into columns no taller than opts.MaxHeight and
// returns them in placement order with their positions updated.
//
// Widgets are bucketed by size and the buckets are placed tallest first.
// Each widget is tried against the existing row levels of the current
// column before a new level, and then a new column, is opened. A widget
// taller than MaxHeight is placed alone at the top of a column.
func Layout(widgets []Widget, opts LayoutOptions) []Widget {
	var keys []sizeKey
	buckets := make(map[sizeKey][]Widget)
	for _, w := range widgets {
		width, height := w.Size()
		k := sizeKey{height: height, width: width}
		if _, ok := buckets[k]; !ok {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], w)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].height > keys[j].height
	})

	placed := make([]Widget, 0, len(widgets))
	var (
		currentX, currentY int
		columnWidth        int
		levels             []*level
	)
	for _, k := range keys {
		for _, w := range buckets[k] {
			if placeInLevel(w, levels, currentX, columnWidth, opts) {
				placed = append(placed, w)
				continue
			}
			if len(levels) > 0 && currentY+k.height > opts.MaxHeight {
				currentX += columnWidth + opts.ColumnSpacing
				currentY = 0
				columnWidth = 0
				levels = nil
			}
			w.SetPosition(currentX, currentY)
			levels = append(levels, &level{y: currentY, widgets: []Widget{w}})
			currentY += k.height + opts.SpacingY
			if k.width > columnWidth {
				columnWidth = k.width
			}
			placed = append(placed, w)
		}
	}
	return placed
}

// placeInLevel appends w to the first row level with room for it. Levels
// are opened by their tallest widget, so anything appended later stays
// inside the row band.
func placeInLevel(w Widget, levels []*level, columnX, columnWidth int, opts LayoutOptions) bool {
	width, height := w.Size()
	for _, lvl := range levels {
		if lvl.y+height > opts.MaxHeight {
			continue
		}
		last := lvl.widgets[len(lvl.widgets)-1]
		lastX, _ := last.Position()
		lastW, _ := last.Size()
		used := lastX + lastW - columnX
		if used+opts.SpacingX+width > columnWidth {
			continue
		}
		w.SetPosition(lastX+lastW+opts.SpacingX, lvl.y)
		lvl.widgets = append(lvl.widgets, w)
		return true
	}
	return false
}
