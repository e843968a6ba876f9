package ocr

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/visperlabs/visper-core/internal/capture"
)

// PreprocessOptions bound the geometry normalization applied before
// recognition.
type PreprocessOptions struct {
	// CropMaxPx: frames whose larger dimension exceeds this are cropped to the
	// centered 80% region.
	CropMaxPx int
	// ScaleMinPx: grayscale results whose larger dimension is below this are
	// upscaled to it.
	ScaleMinPx int
}

// Preprocess normalizes a frame for the backends: optional center crop,
// grayscale conversion, optional upscale, PNG encoding. Returns false when
// the frame is unusable (empty or degenerate).
func Preprocess(frame *capture.Frame, opts PreprocessOptions) (Image, bool) {
	if frame == nil || frame.Img == nil || frame.Img.Empty() {
		return Image{}, false
	}

	src := *frame.Img
	rows, cols := src.Rows(), src.Cols()

	region := src
	cropped := false
	if max(rows, cols) > opts.CropMaxPx {
		rect := image.Rect(cols/10, rows/10, cols*9/10, rows*9/10)
		region = src.Region(rect)
		cropped = true
	}
	if cropped {
		defer region.Close()
	}
	if region.Rows() < 10 || region.Cols() < 10 {
		return Image{}, false
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if region.Channels() > 1 {
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	} else {
		region.CopyTo(&gray)
	}

	if longest := max(gray.Rows(), gray.Cols()); longest < opts.ScaleMinPx {
		scale := float64(opts.ScaleMinPx) / float64(longest)
		sz := image.Pt(int(float64(gray.Cols())*scale), int(float64(gray.Rows())*scale))
		gocv.Resize(gray, &gray, sz, 0, 0, gocv.InterpolationLinear)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, gray)
	if err != nil {
		return Image{}, false
	}
	defer buf.Close()

	return Image{
		PNG:    append([]byte(nil), buf.GetBytes()...),
		Width:  gray.Cols(),
		Height: gray.Rows(),
	}, true
}
