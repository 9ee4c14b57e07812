// Package ai asks multimodal model vendors for object bounding boxes.
package ai

import (
	"context"
	"errors"
)

const (
	ProviderGemini     = "gemini"
	ProviderTogether   = "together"
	ProviderHyperbolic = "hyperbolic"
)

var (
	ErrNoProvider       = errors.New("no AI provider is configured")
	ErrUnknownProvider  = errors.New("unknown AI provider")
	ErrInvalidResponse  = errors.New("invalid response from AI provider")
	ErrImageUnavailable = errors.New("image could not be downloaded")
)

// DetectedObject is one labelled box in [xmin, ymin, xmax, ymax] order
type DetectedObject struct {
	Name          string `json:"name" jsonschema:"description=Short label for the object"`
	BoundingBoxes []int  `json:"bounding_boxes" jsonschema:"description=Box as xmin ymin xmax ymax,minItems=4,maxItems=4"`
}

// DetectedObjectList is the common answer of every provider
type DetectedObjectList struct {
	Objects []DetectedObject `json:"objects"`
}

// DetectionRequest carries everything a provider needs for one image
type DetectionRequest struct {
	ImageURL         string
	DocumentContents map[string]string
	SystemPrompt     string
	AssistantPrompt  string
}

// Service is implemented by each vendor integration
type Service interface {
	Name() string
	ExtractBoundingBoxes(ctx context.Context, req DetectionRequest) (*DetectedObjectList, error)
}
