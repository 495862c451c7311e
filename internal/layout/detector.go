package layout

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

// DetectorConfig holds configuration for the layout detector
type DetectorConfig struct {
	ModelPath         string
	SharedLibraryPath string  // onnxruntime shared library; empty uses the platform default
	InputSize         int     // square model input, default 1024
	MaxDetections     int     // rows of the model output, default 300
	ConfThreshold     float64 // default 0.25
	NMSThreshold      float64 // default 0.45
}

func (c *DetectorConfig) applyDefaults() {
	if c.InputSize <= 0 {
		c.InputSize = 1024
	}
	if c.MaxDetections <= 0 {
		c.MaxDetections = 300
	}
	if c.ConfThreshold <= 0 {
		c.ConfThreshold = 0.25
	}
	if c.NMSThreshold <= 0 {
		c.NMSThreshold = 0.45
	}
}

// Detector runs the DocLayout-YOLO model on rendered pages.
// One session is shared; Detect calls are serialized.
type Detector struct {
	cfg     DetectorConfig
	mu      sync.Mutex
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	session *ort.AdvancedSession
}

// NewDetector loads the model and allocates its tensors.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	cfg.applyDefaults()
	if cfg.ModelPath == "" {
		return nil, types.NewAppError(types.ErrLayoutModel, "model path not specified", nil)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrLayoutModel, "model file not found", cfg.ModelPath, err)
	}

	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, types.NewAppError(types.ErrLayoutModel, "failed to initialize onnxruntime", err)
		}
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), make([]float32, 3*size*size))
	if err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to allocate input tensor", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.MaxDetections), 6))
	if err != nil {
		input.Destroy()
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to allocate output tensor", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, types.NewAppErrorWithDetails(types.ErrLayoutModel, "failed to create session", cfg.ModelPath, err)
	}

	logger.Info("layout model loaded",
		logger.String("path", cfg.ModelPath),
		logger.Int("inputSize", cfg.InputSize))
	return &Detector{cfg: cfg, input: input, output: output, session: session}, nil
}

// Close releases the session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
	return nil
}

// Detect finds layout blocks on a page image and returns them in page points
// (top-left origin) for a page of pageWidth x pageHeight.
func (d *Detector) Detect(ctx context.Context, img image.Image, pageWidth, pageHeight float64) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "detector is closed", nil)
	}

	lb := letterbox(img, d.cfg.InputSize)
	copy(d.input.GetData(), lb.tensor)

	if err := d.session.Run(); err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "layout inference failed", err)
	}

	raw := parseDetections(d.output.GetData(), lb)
	boxes := suppress(filterByScore(raw, d.cfg.ConfThreshold), d.cfg.NMSThreshold)

	bounds := img.Bounds()
	sx := pageWidth / float64(bounds.Dx())
	sy := pageHeight / float64(bounds.Dy())
	for i := range boxes {
		boxes[i].X0 *= sx
		boxes[i].X1 *= sx
		boxes[i].Y0 *= sy
		boxes[i].Y1 *= sy
	}

	logger.Debug("layout detected",
		logger.Int("raw", len(raw)),
		logger.Int("kept", len(boxes)))
	return boxes, nil
}

// Regions detects blocks and paints them into a region map.
func (d *Detector) Regions(ctx context.Context, img image.Image, pageWidth, pageHeight float64) (*RegionMap, error) {
	boxes, err := d.Detect(ctx, img, pageWidth, pageHeight)
	if err != nil {
		return nil, err
	}
	return FromBoxes(pageWidth, pageHeight, boxes), nil
}

// letterboxed is a model input with the transform needed to map boxes back.
type letterboxed struct {
	tensor []float32
	scale  float64
	padX   float64
	padY   float64
}

var padColor = color.RGBA{114, 114, 114, 255}

// letterbox scales img to fit size x size keeping its aspect ratio, centres it on
// a grey canvas and returns the RGB planes normalized to [0,1] in CHW order.
func letterbox(img image.Image, size int) letterboxed {
	b := img.Bounds()
	scale := float64(size) / float64(max(b.Dx(), b.Dy()))
	nw := max(1, int(float64(b.Dx())*scale+0.5))
	nh := max(1, int(float64(b.Dy())*scale+0.5))
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: padColor}, image.Point{}, draw.Src)
	draw.BiLinear.Scale(canvas, image.Rect(padX, padY, padX+nw, padY+nh), img, b, draw.Src, nil)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := canvas.PixOffset(x, y)
			idx := y*size + x
			data[idx] = float32(canvas.Pix[off]) / 255
			data[plane+idx] = float32(canvas.Pix[off+1]) / 255
			data[2*plane+idx] = float32(canvas.Pix[off+2]) / 255
		}
	}
	return letterboxed{tensor: data, scale: scale, padX: float64(padX), padY: float64(padY)}
}

// parseDetections decodes rows of [x0, y0, x1, y1, score, class] in model input
// space into image-space boxes. All-zero padding rows are skipped.
func parseDetections(output []float32, lb letterboxed) []Box {
	var boxes []Box
	for off := 0; off+6 <= len(output); off += 6 {
		row := output[off : off+6]
		if row[4] <= 0 {
			continue
		}
		boxes = append(boxes, Box{
			X0:    (float64(row[0]) - lb.padX) / lb.scale,
			Y0:    (float64(row[1]) - lb.padY) / lb.scale,
			X1:    (float64(row[2]) - lb.padX) / lb.scale,
			Y1:    (float64(row[3]) - lb.padY) / lb.scale,
			Score: float64(row[4]),
			Label: LabelForClass(int(row[5])),
		})
	}
	return boxes
}

func (b Box) String() string {
	return fmt.Sprintf("%s(%.2f) [%.1f %.1f %.1f %.1f]", b.Label, b.Score, b.X0, b.Y0, b.X1, b.Y1)
}
