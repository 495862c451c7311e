package document

import (
	"fmt"
	"math"
	"os"

	"github.com/ledongthuc/pdf"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

// descentRatio approximates the glyph descent below the baseline as a share of the font size.
const descentRatio = 0.2

// Extractor 负责从 PDF 中提取带位置的字符与线段
type Extractor struct {
	path   string
	file   *os.File
	reader *pdf.Reader
}

// Open opens a PDF for primitive extraction.
func Open(path string) (*Extractor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "pdf file not found", path, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrPDFInvalid, "cannot access pdf file", path, err)
	}
	if info.IsDir() {
		return nil, types.NewAppErrorWithDetails(types.ErrPDFInvalid, "path is a directory", path, nil)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrPDFInvalid, "cannot open pdf file", path, err)
	}
	return &Extractor{path: path, file: f, reader: r}, nil
}

// NumPages returns the page count.
func (e *Extractor) NumPages() int {
	return e.reader.NumPage()
}

// Close releases the underlying file.
func (e *Extractor) Close() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// Page extracts the primitives of page num (1-based). Width and Height are
// taken from the media box; callers with better geometry may overwrite them.
func (e *Extractor) Page(num int) (page Page, err error) {
	if num < 1 || num > e.reader.NumPage() {
		return Page{}, types.NewAppErrorWithDetails(types.ErrInvalidInput, "page out of range", fmt.Sprintf("%d", num), nil)
	}

	p := e.reader.Page(num)
	page = Page{Number: num}
	if p.V.IsNull() {
		return page, nil
	}

	if box := mediaBox(p); box.Len() == 4 {
		page.Width = box.Index(2).Float64() - box.Index(0).Float64()
		page.Height = box.Index(3).Float64() - box.Index(1).Float64()
	}

	// the content interpreter panics on malformed operators
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("malformed page content, keeping extracted primitives",
				logger.String("path", e.path), logger.Int("page", num), logger.Any("panic", r))
			err = nil
		}
	}()

	fonts := loadPageFonts(p)
	content := p.Content()
	page.Primitives = make([]Primitive, 0, len(content.Text)+len(content.Rect))
	for _, t := range content.Text {
		if g, ok := glyphFromText(t, fonts); ok {
			page.Primitives = append(page.Primitives, g)
		}
	}
	for _, r := range content.Rect {
		page.Primitives = append(page.Primitives, lineFromRect(r))
	}

	logger.Debug("page extracted",
		logger.Int("page", num),
		logger.Int("text", len(content.Text)),
		logger.Int("rect", len(content.Rect)))
	return page, nil
}

// glyphFromText converts one positioned character into a Glyph. The font
// resource and character code come from fonts; a character whose code cannot
// be recovered keeps its rune as the code.
func glyphFromText(t pdf.Text, fonts pageFonts) (Glyph, bool) {
	if t.S == "" {
		return Glyph{}, false
	}
	ref := FontRef{Name: t.Font}
	cid := int([]rune(t.S)[0])
	if f, ok := fonts[stripSubset(t.Font)]; ok {
		ref.ID = f.id
		ref.TwoByte = f.twoByte
		if c, ok := f.code(t.S); ok {
			cid = c
		}
	}
	size := math.Abs(t.FontSize)
	return Glyph{
		Matrix:  Matrix{size, 0, 0, size, t.X, t.Y},
		Font:    ref,
		Size:    size,
		Text:    t.S,
		CID:     cid,
		X0:      t.X,
		Y0:      t.Y - descentRatio*size,
		X1:      t.X + t.W,
		Y1:      t.Y + (1-descentRatio)*size,
		Advance: t.W,
	}, true
}

// lineFromRect turns a filled rectangle into a stroke along its long axis.
// Thin rectangles are how most producers draw fraction bars and rules.
func lineFromRect(r pdf.Rect) Line {
	w := r.Max.X - r.Min.X
	h := r.Max.Y - r.Min.Y
	if w >= h {
		y := (r.Min.Y + r.Max.Y) / 2
		return Line{P0: Point{r.Min.X, y}, P1: Point{r.Max.X, y}, Width: h}
	}
	x := (r.Min.X + r.Max.X) / 2
	return Line{P0: Point{x, r.Min.Y}, P1: Point{x, r.Max.Y}, Width: w}
}
