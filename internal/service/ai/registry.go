package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"docvision-service/pkg/config"
	"docvision-service/prometheus"

	"go.uber.org/zap"
)

// Registry holds the configured providers in fallback order
type Registry struct {
	services []Service
	cache    Cache
	logger   *zap.Logger
}

// DetectionResult names the provider that produced the objects
type DetectionResult struct {
	Provider string           `json:"provider"`
	Objects  []DetectedObject `json:"objects"`
	Cached   bool             `json:"cached"`
}

func NewRegistry(cache Cache, logger *zap.Logger, services ...Service) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{services: services, cache: cache, logger: logger}
}

// NewRegistryFromConfig registers Gemini, Together and Hyperbolic in that
// order, skipping providers whose API key is not set.
func NewRegistryFromConfig(ctx context.Context, cfg config.AIConfig, httpClient *http.Client, cache Cache, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := NewImageFetcher(httpClient)

	var services []Service

	if cfg.GoogleAPIKey != "" {
		svc, err := NewGemini(ctx, GeminiConfig{APIKey: cfg.GoogleAPIKey, Model: cfg.GeminiModel}, fetcher, logger)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	} else {
		logger.Warn("GOOGLE_API_KEY is not set, gemini disabled")
	}

	if cfg.TogetherAPIKey != "" {
		svc, err := NewTogether(cfg.TogetherAPIKey, cfg.TogetherBaseURL, cfg.TogetherModel, fetcher, logger)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	} else {
		logger.Warn("TOGETHER_API_KEY is not set, together disabled")
	}

	if cfg.HyperbolicAPIKey != "" {
		svc, err := NewHyperbolic(cfg.HyperbolicAPIKey, cfg.HyperbolicURL, cfg.HyperbolicModel, fetcher, logger)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	} else {
		logger.Warn("HYPERBOLIC_API_KEY is not set, hyperbolic disabled")
	}

	return NewRegistry(cache, logger, services...), nil
}

// Providers lists the registered provider names in fallback order
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		names = append(names, svc.Name())
	}
	return names
}

// Detect runs the preferred provider first and falls back to the others in
// registration order. An empty preferred name starts with the first provider.
// cacheKey may be empty to bypass the cache.
func (r *Registry) Detect(ctx context.Context, preferred string, cacheKey string, req DetectionRequest) (*DetectionResult, error) {
	if len(r.services) == 0 {
		return nil, ErrNoProvider
	}

	ordered, err := r.order(preferred)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, svc := range ordered {
		key := ""
		if r.cache != nil && cacheKey != "" {
			key = svc.Name() + ":" + cacheKey
			if cached, ok := r.cache.Get(ctx, key); ok {
				return &DetectionResult{Provider: svc.Name(), Objects: cached.Objects, Cached: true}, nil
			}
		}

		done := prometheus.TrackAIRequest(svc.Name())
		result, err := svc.ExtractBoundingBoxes(ctx, req)
		done(err)
		if err != nil {
			r.logger.Warn("AI provider failed", zap.String("provider", svc.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			// Every provider would fail the same way on a bad image or a cancelled request
			if errors.Is(err, ErrImageUnavailable) || ctx.Err() != nil {
				break
			}
			continue
		}

		if key != "" {
			r.cache.Set(ctx, key, result)
		}
		return &DetectionResult{Provider: svc.Name(), Objects: result.Objects}, nil
	}

	return nil, errors.Join(errs...)
}

func (r *Registry) order(preferred string) ([]Service, error) {
	if preferred == "" {
		return r.services, nil
	}

	idx := -1
	for i, svc := range r.services {
		if svc.Name() == preferred {
			idx = i
			break
		}
	}
	if idx < 0 {
		if !IsKnownProvider(preferred) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, preferred)
		}
		// Known but not configured: fall back to whatever is available
		r.logger.Warn("Preferred AI provider is not configured", zap.String("provider", preferred))
		return r.services, nil
	}

	ordered := make([]Service, 0, len(r.services))
	ordered = append(ordered, r.services[idx])
	ordered = append(ordered, r.services[:idx]...)
	ordered = append(ordered, r.services[idx+1:]...)
	return ordered, nil
}

// IsKnownProvider reports whether name is one of the supported vendors
func IsKnownProvider(name string) bool {
	switch name {
	case ProviderGemini, ProviderTogether, ProviderHyperbolic:
		return true
	}
	return false
}
