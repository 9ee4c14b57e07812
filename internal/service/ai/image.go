package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"docvision-service/pkg/imaging"
)

// maxImageBytes bounds the download of a single image
const maxImageBytes = 50 << 20

// ImageFetcher downloads an image and normalizes it for a vision model
type ImageFetcher struct {
	client *http.Client
}

func NewImageFetcher(client *http.Client) *ImageFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageFetcher{client: client}
}

func (f *ImageFetcher) Fetch(ctx context.Context, url string) (*imaging.Prepared, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrImageUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}

	prepared, err := imaging.Prepare(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}
	return prepared, nil
}
