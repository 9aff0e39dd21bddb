package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"
)

const (
	// maxConcurrent caps parallel OCR requests to respect upstream rate limits.
	maxConcurrent = 3
	// paceDelay spaces out request starts.
	paceDelay = 500 * time.Millisecond
	// maxDimension is the longest image edge sent upstream; larger images
	// are downscaled before upload.
	maxDimension = 1024

	// DocumentSeparator joins the text of separate images in combined output.
	DocumentSeparator = "\n\n--- New Document ---\n\n"
)

// Image is one uploaded page to extract text from.
type Image struct {
	Name string
	Data []byte
}

// Result is the outcome of extracting text from a single image.
type Result struct {
	Name    string
	Success bool
	Text    string
	Err     string
}

// Client talks to an OCR.space-style parse/image endpoint.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
	pace   time.Duration
	log    *slog.Logger
}

// New creates an OCR client for the given endpoint and API key.
func New(apiURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		pace:   paceDelay,
		log:    logger,
	}
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	ErrorMessage          any  `json:"ErrorMessage"`
}

// ExtractImage runs OCR on one image. Failures are reported inside the
// Result, never as an error, so a batch can tolerate partial failure.
func (c *Client) ExtractImage(ctx context.Context, img Image) Result {
	data := c.preprocess(img)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("apikey", c.apiKey)
	_ = mw.WriteField("language", "auto")
	_ = mw.WriteField("OCREngine", "2")
	_ = mw.WriteField("scale", "true")
	_ = mw.WriteField("detectOrientation", "true")
	_ = mw.WriteField("isOverlayRequired", "false")
	fw, err := mw.CreateFormFile("file", img.Name)
	if err == nil {
		_, err = fw.Write(data)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return Result{Name: img.Name, Err: fmt.Sprintf("build request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return Result{Name: img.Name, Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("ocr request failed", "image", img.Name, "error", err)
		return Result{Name: img.Name, Err: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: img.Name, Err: fmt.Sprintf("ocr api status %d", resp.StatusCode)}
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Name: img.Name, Err: fmt.Sprintf("decode response: %v", err)}
	}
	if parsed.IsErroredOnProcessing || len(parsed.ParsedResults) == 0 {
		return Result{Name: img.Name, Err: "no text detected"}
	}

	text := strings.TrimSpace(parsed.ParsedResults[0].ParsedText)
	return Result{Name: img.Name, Success: true, Text: text}
}

// ExtractAll runs OCR over a batch of images with a bounded concurrency
// ceiling and a pacing delay between request starts. Results keep input
// order; individual failures do not abort the batch.
func (c *Client) ExtractAll(ctx context.Context, images []Image) []Result {
	results := make([]Result, len(images))
	sem := semaphore.NewWeighted(maxConcurrent)
	done := make(chan struct{}, len(images))

	var pending int
	for i, img := range images {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Name: img.Name, Err: err.Error()}
			continue
		}
		pending++
		go func(i int, img Image) {
			defer sem.Release(1)
			results[i] = c.ExtractImage(ctx, img)
			done <- struct{}{}
		}(i, img)

		if c.pace > 0 && i < len(images)-1 {
			select {
			case <-time.After(c.pace):
			case <-ctx.Done():
			}
		}
	}
	for range pending {
		<-done
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	c.log.Info("ocr batch complete", "total", len(images), "successful", successful)
	return results
}

// Combine concatenates the text of successful extractions, each prefixed
// with its image identifier for diagnostics.
func Combine(results []Result) string {
	var parts []string
	for _, r := range results {
		if !r.Success || strings.TrimSpace(r.Text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s", r.Name, strings.TrimSpace(r.Text)))
	}
	return strings.Join(parts, DocumentSeparator)
}

// preprocess downscales oversized images and re-encodes them as JPEG to
// keep uploads small. Undecodable data is uploaded unmodified.
func (c *Client) preprocess(img Image) []byte {
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img.Data
	}

	b := decoded.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDimension && h <= maxDimension {
		return img.Data
	}

	scale := float64(maxDimension) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), decoded, b, xdraw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 85}); err != nil {
		return img.Data
	}
	c.log.Debug("image downscaled", "image", img.Name,
		"from", fmt.Sprintf("%dx%d", w, h), "to", dst.Bounds().Size())
	return out.Bytes()
}
