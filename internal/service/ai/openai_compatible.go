package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const detectionSystemPrompt = `You are a helpful assistant that precisely detects objects in images. When asked to detect objects, you return bounding boxes in the form of [xmin, ymin, xmax, ymax] with the values being scaled to match the 1024x1024 size.
Always respond in JSON format with an object with a key 'objects' that contains a list of objects where each object has the following keys: 'bounding_boxes' and 'name'. Here's an example of what the object must look like:
{
    "objects": [
        {"bounding_boxes": [435, 595, 704, 710], "name": "electric car"},
        {"bounding_boxes": [300, 450, 665, 610], "name": "house"}
    ]
}
The answer must validate against this JSON schema:
`

const hyperbolicUserPrompt = "Detect all objects in this image and provide bounding boxes for each of them."

// OpenAICompatibleConfig configures a vendor exposing the OpenAI chat completions API
type OpenAICompatibleConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	// FixedUserPrompt replaces the caller's prompt and documents when set
	FixedUserPrompt string
}

type openAICompatible struct {
	name            string
	client          openai.Client
	model           string
	fixedUserPrompt string
	systemPrompt    string
	fetcher         *ImageFetcher
	logger          *zap.Logger
}

func newOpenAICompatible(cfg OpenAICompatibleConfig, fetcher *ImageFetcher, logger *zap.Logger) (Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &openAICompatible{
		name:            cfg.Name,
		client:          openai.NewClient(opts...),
		model:           cfg.Model,
		fixedUserPrompt: cfg.FixedUserPrompt,
		systemPrompt:    detectionSystemPrompt + ResponseSchema(),
		fetcher:         fetcher,
		logger:          logger.With(zap.String("provider", cfg.Name)),
	}, nil
}

// NewTogether talks to Together AI. The caller's system prompt is not sent;
// the detection instructions are fixed so the answer format stays stable.
func NewTogether(apiKey, baseURL, model string, fetcher *ImageFetcher, logger *zap.Logger) (Service, error) {
	return newOpenAICompatible(OpenAICompatibleConfig{
		Name:    ProviderTogether,
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
	}, fetcher, logger)
}

// NewHyperbolic talks to Hyperbolic, which always gets a generic detection prompt
func NewHyperbolic(apiKey, baseURL, model string, fetcher *ImageFetcher, logger *zap.Logger) (Service, error) {
	return newOpenAICompatible(OpenAICompatibleConfig{
		Name:            ProviderHyperbolic,
		APIKey:          apiKey,
		BaseURL:         baseURL,
		Model:           model,
		FixedUserPrompt: hyperbolicUserPrompt,
	}, fetcher, logger)
}

func (s *openAICompatible) Name() string {
	return s.name
}

func (s *openAICompatible) ExtractBoundingBoxes(ctx context.Context, req DetectionRequest) (*DetectedObjectList, error) {
	image, err := s.fetcher.Fetch(ctx, req.ImageURL)
	if err != nil {
		return nil, err
	}

	prompt := s.fixedUserPrompt
	if prompt == "" {
		prompt = BuildPrompt(req.AssistantPrompt, req.DocumentContents)
	}

	params := openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(s.systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: image.DataURL(),
				}),
			}),
		},
	}

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", s.name, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: %s returned no content", ErrInvalidResponse, s.name)
	}

	s.logger.Debug("Detection completed",
		zap.String("model", s.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return ParseResponse(resp.Choices[0].Message.Content)
}
