package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractBackend recognizes text through the native Tesseract library. It
// is the default backend and the cheapest one to initialize.
type TesseractBackend struct {
	language string
}

// NewTesseractBackend probes the installed Tesseract data and returns a
// backend bound to the configured language.
func NewTesseractBackend(language string) (Backend, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("tesseract unavailable: %w", err)
	}
	if language == "" {
		language = "eng"
	}
	found := false
	for _, l := range langs {
		if l == language {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("tesseract language %q not installed", language)
	}
	return &TesseractBackend{language: language}, nil
}

func (t *TesseractBackend) Name() string { return "tesseract" }

func (t *TesseractBackend) Recognize(ctx context.Context, img Image) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return Candidate{}, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return Candidate{}, fmt.Errorf("set psm: %w", err)
	}
	if err := client.SetImageFromBytes(img.PNG); err != nil {
		return Candidate{}, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Candidate{}, fmt.Errorf("recognize text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Candidate{Backend: t.Name()}, nil
	}

	return Candidate{
		Text:       text,
		Confidence: wordConfidence(client, text),
		Backend:    t.Name(),
	}, nil
}

// wordConfidence averages Tesseract's word-level confidences; when boxes are
// unavailable it falls back to a word-count heuristic.
func wordConfidence(client *gosseract.Client, text string) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence / 100.0
		}
		return sum / float64(len(boxes))
	}
	if len(strings.Fields(text)) > 2 {
		return 0.7
	}
	return 0.6
}
