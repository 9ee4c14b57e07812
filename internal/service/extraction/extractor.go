// Package extraction turns uploaded documents into text through an external processor.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docvision-service/internal/model"
	"docvision-service/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrFileGone = errors.New("file no longer exists")

// maxResponseBytes bounds the extracted text kept for one document
const maxResponseBytes = 20 << 20

type Config struct {
	ProcessorURL string
	AuthToken    string
	Timeout      time.Duration
	PresignTTL   time.Duration
}

// Extractor posts a document URL to the processor and stores the text it returns
type Extractor struct {
	db     *gorm.DB
	store  storage.ObjectStore
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

func NewExtractor(db *gorm.DB, store storage.ObjectStore, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		db:     db,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

type processRequest struct {
	DocumentURL string `json:"document_url"`
}

// Extract fetches the file row, asks the processor for its text and saves it.
// ErrFileGone is returned when the row was deleted before the job ran.
func (e *Extractor) Extract(ctx context.Context, fileID uuid.UUID) error {
	var file model.File
	if err := e.db.WithContext(ctx).First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileGone
		}
		return fmt.Errorf("load file: %w", err)
	}

	documentURL, err := e.store.PresignGet(ctx, file.Path, e.cfg.PresignTTL)
	if err != nil {
		return err
	}

	text, err := e.process(ctx, documentURL)
	if err != nil {
		return err
	}

	now := time.Now()
	result := e.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", file.ID).Updates(map[string]any{
		"contents":     text,
		"processed_at": now,
	})
	if result.Error != nil {
		return fmt.Errorf("store extracted text: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFileGone
	}

	e.logger.Info("Document text extracted",
		zap.String("file_id", file.ID.String()),
		zap.Int("length", len(text)))
	return nil
}

func (e *Extractor) process(ctx context.Context, documentURL string) (string, error) {
	if e.cfg.ProcessorURL == "" {
		return "", errors.New("DOCUMENT_PROCESSOR_URL is not configured")
	}

	body, err := json.Marshal(processRequest{DocumentURL: documentURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.ProcessorURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.AuthToken)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call processor: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	return string(data), nil
}
