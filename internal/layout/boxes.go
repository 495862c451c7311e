package layout

import (
	"math"
	"sort"
)

// Label is a layout block class produced by the detector.
type Label string

const (
	LabelTitle          Label = "title"
	LabelPlainText      Label = "plain text"
	LabelAbandon        Label = "abandon"
	LabelFigure         Label = "figure"
	LabelFigureCaption  Label = "figure_caption"
	LabelTable          Label = "table"
	LabelTableCaption   Label = "table_caption"
	LabelTableFootnote  Label = "table_footnote"
	LabelIsolateFormula Label = "isolate_formula"
	LabelFormulaCaption Label = "formula_caption"
)

// docStructLabels is the class order of the DocLayout-YOLO DocStructBench model.
var docStructLabels = []Label{
	LabelTitle,
	LabelPlainText,
	LabelAbandon,
	LabelFigure,
	LabelFigureCaption,
	LabelTable,
	LabelTableCaption,
	LabelTableFootnote,
	LabelIsolateFormula,
	LabelFormulaCaption,
}

// LabelForClass maps a model class index to its label.
func LabelForClass(id int) Label {
	if id < 0 || id >= len(docStructLabels) {
		return LabelPlainText
	}
	return docStructLabels[id]
}

// Reserved reports whether blocks of this label keep their original content.
func (l Label) Reserved() bool {
	switch l {
	case LabelAbandon, LabelFigure, LabelTable, LabelIsolateFormula, LabelFormulaCaption:
		return true
	}
	return false
}

// Box is a detected block in top-left image coordinates.
type Box struct {
	X0    float64
	Y0    float64
	X1    float64
	Y1    float64
	Label Label
	Score float64
}

func (b Box) area() float64 {
	return math.Max(0, b.X1-b.X0) * math.Max(0, b.Y1-b.Y0)
}

// iou calculates Intersection over Union
func iou(a, b Box) float64 {
	x0 := math.Max(a.X0, b.X0)
	y0 := math.Max(a.Y0, b.Y0)
	x1 := math.Min(a.X1, b.X1)
	y1 := math.Min(a.Y1, b.Y1)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// filterByScore drops boxes below threshold.
func filterByScore(boxes []Box, threshold float64) []Box {
	var out []Box
	for _, b := range boxes {
		if b.Score >= threshold {
			out = append(out, b)
		}
	}
	return out
}

// suppress applies per-label Non-Maximum Suppression. The result is ordered by
// descending score, which is also the order text blocks are numbered in.
func suppress(boxes []Box, threshold float64) []Box {
	sorted := append([]Box(nil), boxes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var keep []Box
	for _, b := range sorted {
		dup := false
		for _, k := range keep {
			if k.Label == b.Label && iou(k, b) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			keep = append(keep, b)
		}
	}
	return keep
}
