package ai

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const geminiTemperature float32 = 0.05

type gemini struct {
	client  *genai.Client
	model   string
	fetcher *ImageFetcher
	logger  *zap.Logger
}

// GeminiConfig configures the Google GenAI client. BaseURL and HTTPClient
// are only set when talking to something other than the public endpoint.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewGemini(ctx context.Context, cfg GeminiConfig, fetcher *ImageFetcher, logger *zap.Logger) (Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", ProviderGemini)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &gemini{
		client:  client,
		model:   cfg.Model,
		fetcher: fetcher,
		logger:  logger.With(zap.String("provider", ProviderGemini)),
	}, nil
}

func (g *gemini) Name() string {
	return ProviderGemini
}

func (g *gemini) ExtractBoundingBoxes(ctx context.Context, req DetectionRequest) (*DetectedObjectList, error) {
	image, err := g.fetcher.Fetch(ctx, req.ImageURL)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, "image/jpeg"),
			genai.NewPartFromText(BuildPrompt(req.AssistantPrompt, req.DocumentContents)),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiResponseSchema(),
		Temperature:      genai.Ptr(geminiTemperature),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: gemini returned no content", ErrInvalidResponse)
	}

	g.logger.Debug("Detection completed", zap.String("model", g.model))
	return ParseResponse(text)
}

// geminiResponseSchema mirrors DetectedObjectList in the OpenAPI subset Gemini accepts
func geminiResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"objects": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {Type: genai.TypeString},
						"bounding_boxes": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeInteger},
						},
					},
					Required: []string{"name", "bounding_boxes"},
				},
			},
		},
		Required: []string{"objects"},
	}
}
