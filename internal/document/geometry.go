package document

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

// PageSize is the width and height of a page in points.
type PageSize struct {
	Width  float64
	Height float64
}

// PageGeometry validates a PDF with pdfcpu and reports the size of every page.
func PageGeometry(path string) ([]PageSize, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(path, conf); err != nil {
		logger.Warn("pdf validation reported problems", logger.String("path", path), logger.Err(err))
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrPDFInvalid, "cannot read pdf", path, err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrPDFInvalid, "cannot read page dimensions", path, err)
	}

	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	logger.Debug("page geometry read", logger.String("path", path), logger.Int("pages", ctx.PageCount))
	return sizes, nil
}

// ApplyGeometry overwrites page dimensions with the pdfcpu sizes when available.
func ApplyGeometry(page *Page, sizes []PageSize) {
	i := page.Number - 1
	if i < 0 || i >= len(sizes) {
		return
	}
	if sizes[i].Width > 0 && sizes[i].Height > 0 {
		page.Width = sizes[i].Width
		page.Height = sizes[i].Height
	}
}
