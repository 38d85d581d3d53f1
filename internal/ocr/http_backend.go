package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPBackendConfig configures a remote OCR server backend.
type HTTPBackendConfig struct {
	Name      string
	BaseURL   string
	Path      string
	Languages []string
	APIKey    string
	Timeout   time.Duration
}

// HTTPBackend calls an EasyOCR-style HTTP server: one reader per language set.
type HTTPBackend struct {
	client    *resty.Client
	name      string
	endpoint  string
	languages []string
}

type httpOCRRequest struct {
	Image     string   `json:"image"`
	Languages []string `json:"languages,omitempty"`
}

type httpOCRResponse struct {
	Results []struct {
		Text       string      `json:"text"`
		Confidence float64     `json:"confidence"`
		BBox       [][]float64 `json:"bbox"`
		Lang       string      `json:"lang"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// NewHTTPBackend creates an HTTP OCR backend.
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	path := cfg.Path
	if path == "" {
		path = "/readtext"
	}
	name := cfg.Name
	if name == "" {
		name = "http:" + strings.Join(cfg.Languages, "+")
	}

	return &HTTPBackend{
		client:    client,
		name:      name,
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + path,
		languages: cfg.Languages,
	}
}

// Name returns the backend name.
func (b *HTTPBackend) Name() string {
	return b.name
}

// Detect posts the region as base64 PNG and returns the server's detections.
func (b *HTTPBackend) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	req := httpOCRRequest{
		Image:     base64.StdEncoding.EncodeToString(data),
		Languages: b.languages,
	}

	var resp httpOCRResponse
	httpResp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call OCR server: %w", err)
	}
	if httpResp.IsError() {
		msg := resp.Error
		if msg == "" {
			msg = string(httpResp.Body())
		}
		return nil, fmt.Errorf("OCR server returned HTTP %d: %s", httpResp.StatusCode(), msg)
	}

	lang := ""
	if len(b.languages) > 0 {
		lang = b.languages[0]
	}

	out := make([]Detection, 0, len(resp.Results))
	for _, r := range resp.Results {
		d := Detection{
			Text:       r.Text,
			Confidence: r.Confidence,
			Lang:       r.Lang,
		}
		if d.Lang == "" {
			d.Lang = lang
		}
		for _, pt := range r.BBox {
			if len(pt) >= 2 {
				d.BBox = append(d.BBox, Point{X: pt[0], Y: pt[1]})
			}
		}
		out = append(out, d)
	}
	return out, nil
}
