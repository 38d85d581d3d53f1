package ocr

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/textrun/internal/prompts"
)

// VLMBackendConfig holds configuration for the vision-language model backend.
type VLMBackendConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// DefaultConfidence is assigned to plain-text lines that carry no score.
	DefaultConfidence float64
}

// VLMBackend reads captions through an OpenAI-compatible chat completion API.
type VLMBackend struct {
	client            *resty.Client
	model             string
	endpoint          string
	defaultConfidence float64
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewVLMBackend creates a new VLM backend.
func NewVLMBackend(cfg VLMBackendConfig) *VLMBackend {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	conf := cfg.DefaultConfidence
	if conf <= 0 || conf > 1 {
		conf = 0.9
	}

	return &VLMBackend{
		client:            client,
		model:             cfg.Model,
		endpoint:          strings.TrimRight(baseURL, "/") + "/chat/completions",
		defaultConfidence: conf,
	}
}

// Name returns the backend name.
func (b *VLMBackend) Name() string {
	return "vlm:" + b.model
}

// Detect sends the caption strip to the model and parses its JSON lines answer.
func (b *VLMBackend) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	req := openAIRequest{
		Model: b.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.SubtitleOCRSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{
						Type: "text",
						Text: prompts.SubtitleOCRUserPrompt,
					},
					openAIImageContent{
						Type: "image_url",
						ImageURL: openAIImageURL{
							URL:    dataURL,
							Detail: "high",
						},
					},
				},
			},
		},
		MaxTokens: 400,
	}

	var resp openAIResponse
	httpResp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call VLM OCR API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return nil, fmt.Errorf("VLM OCR API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("VLM OCR API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in VLM OCR response (status: %d)", httpResp.StatusCode())
	}

	return ParseVLMLines(resp.Choices[0].Message.Content, b.defaultConfidence), nil
}

// ParseVLMLines reads one detection per line. JSON lines carry their own score; bare text
// lines get defaultConfidence. Markdown fences are ignored.
func ParseVLMLines(content string, defaultConfidence float64) []Detection {
	var out []Detection
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		if strings.HasPrefix(line, "{") {
			var d Detection
			if err := json.Unmarshal([]byte(line), &d); err == nil {
				if d.Confidence <= 0 {
					d.Confidence = defaultConfidence
				}
				out = append(out, d)
				continue
			}
		}
		out = append(out, Detection{Text: line, Confidence: defaultConfidence})
	}
	return out
}
