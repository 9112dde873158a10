package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/imaging"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

const (
	providerName = "openai"
	// images are downscaled before upload; low-detail vision input is 512px anyway
	uploadSide = 512
)

// describePrompt asks for a stable, purely visual description so that similar
// images yield similar text.
const describePrompt = "Describe only the visual content of this image for similarity search: " +
	"main subjects, their arrangement, colours, textures, lighting, viewpoint and image type " +
	"(photo, x-ray, satellite, CCTV frame, ...). Use plain comma-separated phrases, no opinions, " +
	"no guesses about names or identities."

// Extractor turns an image into an embedding with an OpenAI-compatible API:
// a vision model writes a visual description, an embedding model embeds it.
type Extractor struct {
	client         *openai.Client
	visionModel    string
	embeddingModel openai.EmbeddingModel
	dimensions     int
	logger         *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	VisionModel    string
	EmbeddingModel string
	Dimensions     int
	Logger         *zap.Logger
}

// NewExtractor creates an OpenAI-compatible image extractor.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Extractor{
		client:         openai.NewClientWithConfig(clientCfg),
		visionModel:    cfg.VisionModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:     cfg.Dimensions,
		logger:         cfg.Logger,
	}
}

// Dimensions reports the embedding dimension requested from the API.
func (e *Extractor) Dimensions() int { return e.dimensions }

// Extract implements domain.Extractor.
func (e *Extractor) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	dataURL, err := toDataURL(image)
	if err != nil {
		return domain.Embedding{}, err
	}

	start := time.Now()
	caption, err := e.describe(ctx, dataURL)
	if err != nil {
		return domain.Embedding{}, err
	}

	vec, err := e.embed(ctx, caption)
	if err != nil {
		return domain.Embedding{}, err
	}

	emb, err := domain.NewEmbedding(vec)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "invalid_vector").Inc()
		return domain.Embedding{}, fmt.Errorf("normalize embedding: %w: %w", domain.ErrExtractionFailure, err)
	}

	e.logger.Debug("Remote extraction completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("caption_len", len(caption)),
	)
	return emb, nil
}

func (e *Extractor) describe(ctx context.Context, dataURL string) (string, error) {
	seed := 0
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: describePrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailLow,
				}},
			},
		}},
		Temperature: 0,
		Seed:        &seed,
	})
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "vision_api_error").Inc()
		return "", parseAPIError("vision", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "empty_response").Inc()
		return "", fmt.Errorf("empty vision response: %w", domain.ErrExtractionFailure)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (e *Extractor) embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "embedding_api_error").Inc()
		return nil, parseAPIError("embedding", err)
	}
	if len(resp.Data) == 0 {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrExtractionFailure)
	}

	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "output_size").Inc()
		return nil, fmt.Errorf("embedding has %d dimensions, want %d: %w",
			len(vec), e.dimensions, domain.ErrExtractionFailure)
	}
	return vec, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// toDataURL validates the image and re-encodes a downscaled JPEG as a data URL.
func toDataURL(data []byte) (string, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return "", err //nolint:wrapcheck // already carries ErrUnsupportedFormat
	}
	b := img.Bounds()
	if b.Dx() > uploadSide || b.Dy() > uploadSide {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, uploadSide, max(1, b.Dy()*uploadSide/b.Dx()))
		} else {
			img = imaging.Resize(img, max(1, b.Dx()*uploadSide/b.Dy()), uploadSide)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode upload: %w: %w", domain.ErrExtractionFailure, err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrExtractionFailure.
func parseAPIError(stage string, err error) error {
	wrap := domain.ErrExtractionFailure

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", stage, reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", stage, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w", stage, err)
	}
	return fmt.Errorf("%s request failed: %w", stage, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (used by some OpenAI-compatible gateways).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
