package ocr

import (
	"fmt"

	"github.com/timmy/textrun/internal/config"
)

// NewAdapterFromConfig builds the adapter and its backend chain from configuration.
func NewAdapterFromConfig(ocrCfg *config.OCRConfig, extCfg *config.ExtractionConfig) (*Adapter, error) {
	if len(ocrCfg.Backends) == 0 {
		return nil, fmt.Errorf("ocr.backends is empty")
	}
	backends := make([]Backend, 0, len(ocrCfg.Backends))
	for i, b := range ocrCfg.Backends {
		switch b.Type {
		case "http":
			backends = append(backends, NewHTTPBackend(HTTPBackendConfig{
				Name:      b.Name,
				BaseURL:   b.BaseURL,
				Path:      b.Path,
				Languages: b.Languages,
				APIKey:    b.APIKey,
				Timeout:   b.Timeout,
			}))
		case "vlm":
			backends = append(backends, NewVLMBackend(VLMBackendConfig{
				Model:             b.Model,
				APIKey:            b.APIKey,
				BaseURL:           b.BaseURL,
				Timeout:           b.Timeout,
				DefaultConfidence: b.DefaultConfidence,
			}))
		case "static":
			backends = append(backends, &StaticBackend{BackendName: b.Name})
		default:
			return nil, fmt.Errorf("ocr.backends[%d]: unknown type %q", i, b.Type)
		}
	}
	return NewAdapter(AdapterConfig{
		CropFraction: extCfg.CropFraction,
		MaxWidth:     extCfg.MaxWidth,
	}, backends...), nil
}
