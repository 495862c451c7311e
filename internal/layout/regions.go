// Package layout maps page positions to layout region classes.
//
// A region map is a raster at page resolution (one cell per point) whose cells
// hold a class id. Class 0 marks reserved regions whose content is preserved
// verbatim (figures, tables, isolated formulas); class 1 is background; every
// detected text block gets its own id starting at 2.
package layout

import "math"

const (
	// ClassReserved marks content that must not be translated.
	ClassReserved = 0
	// ClassBackground is the class of cells not covered by any detected block.
	ClassBackground = 1
	// firstTextClass is the id given to the first text block.
	firstTextClass = 2
)

// Lookup maps a page position (points, y grows upwards) to a region class.
type Lookup interface {
	ClassAt(x, y float64) int
}

// RegionMap is a raster region map.
type RegionMap struct {
	width  int
	height int
	cells  []int
}

// NewRegionMap returns a width x height map filled with ClassBackground.
func NewRegionMap(width, height int) *RegionMap {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	m := &RegionMap{width: width, height: height, cells: make([]int, width*height)}
	for i := range m.cells {
		m.cells[i] = ClassBackground
	}
	return m
}

// Uniform returns a map of a page-sized raster where every cell has the same class.
func Uniform(pageWidth, pageHeight float64, class int) *RegionMap {
	m := NewRegionMap(int(math.Ceil(pageWidth)), int(math.Ceil(pageHeight)))
	for i := range m.cells {
		m.cells[i] = class
	}
	return m
}

// Size returns the raster dimensions.
func (m *RegionMap) Size() (width, height int) {
	return m.width, m.height
}

// ClassAt returns the class at (x, y), clamping the position into the raster.
func (m *RegionMap) ClassAt(x, y float64) int {
	cx := clamp(int(x), 0, m.width-1)
	cy := clamp(int(y), 0, m.height-1)
	return m.cells[cy*m.width+cx]
}

// Fill sets the class of the half-open cell rectangle [x0,x1) x [y0,y1).
func (m *RegionMap) Fill(x0, y0, x1, y1, class int) {
	x0, x1 = clamp(x0, 0, m.width), clamp(x1, 0, m.width)
	y0, y1 = clamp(y0, 0, m.height), clamp(y1, 0, m.height)
	for y := y0; y < y1; y++ {
		row := m.cells[y*m.width : (y+1)*m.width]
		for x := x0; x < x1; x++ {
			row[x] = class
		}
	}
}

// FromBoxes paints detected blocks into a region map for a page of the given size.
// Boxes are in top-left image coordinates at one pixel per point; the map uses the
// PDF y-up convention. Text blocks are painted first with ids 2, 3, ... in box order,
// then reserved blocks are painted over them with class 0. Every box grows by one
// cell on each side.
func FromBoxes(pageWidth, pageHeight float64, boxes []Box) *RegionMap {
	m := NewRegionMap(int(math.Ceil(pageWidth)), int(math.Ceil(pageHeight)))
	w, h := m.width, m.height

	paint := func(b Box, class int) {
		x0 := clamp(int(b.X0-1), 0, w-1)
		y0 := clamp(int(float64(h)-b.Y1-1), 0, h-1)
		x1 := clamp(int(b.X1+1), 0, w-1)
		y1 := clamp(int(float64(h)-b.Y0+1), 0, h-1)
		m.Fill(x0, y0, x1, y1, class)
	}

	for i, b := range boxes {
		if !b.Label.Reserved() {
			paint(b, firstTextClass+i)
		}
	}
	for _, b := range boxes {
		if b.Label.Reserved() {
			paint(b, ClassReserved)
		}
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
