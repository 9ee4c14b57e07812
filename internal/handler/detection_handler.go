package handler

import (
	"errors"
	"net/http"

	"docvision-service/internal/model"
	"docvision-service/internal/service/ai"
	"docvision-service/pkg/database"
	"docvision-service/pkg/imaging"
	"docvision-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type DetectionRequest struct {
	Provider        string `json:"provider"`
	SystemPrompt    string `json:"system_prompt"`
	AssistantPrompt string `json:"assistant_prompt"`
}

var errNotAnImage = newAPIError(http.StatusBadRequest, "File is not an image.")

// DetectObjects asks the AI providers for bounding boxes on an image file.
// Extracted text of the other project files is passed along as context.
func DetectObjects(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	project, file, err := loadFile(c, user)
	if err != nil {
		return writeError(c, err)
	}

	var req DetectionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return writeError(c, newAPIError(http.StatusBadRequest, "invalid request"))
		}
	}

	if !file.IsImage() {
		return writeError(c, errNotAnImage)
	}
	if deps.AI == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": ai.ErrNoProvider.Error()})
	}

	prefs, err := loadPreferenceValues(model.PreferenceAIProvider, model.PreferenceSystemPrompt, model.PreferenceAssistantPrompt)
	if err != nil {
		log.Error("Failed to load preferences", zap.Error(err))
		return writeError(c, errDatabase)
	}
	provider := firstNonEmpty(req.Provider, prefs[model.PreferenceAIProvider])
	if provider != "" && !ai.IsKnownProvider(provider) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Unknown AI provider: " + provider})
	}

	documents, err := projectDocuments(project.ID.String(), file.ID.String())
	if err != nil {
		log.Error("Failed to load project documents", zap.Error(err))
		return writeError(c, errDatabase)
	}

	ctx := c.Request().Context()
	imageURL, err := deps.Storage.PresignGet(ctx, file.Path, deps.PresignTTL)
	if err != nil {
		log.Error("Failed to presign image", zap.String("key", file.Path), zap.Error(err))
		return writeError(c, errStorage)
	}

	detectReq := ai.DetectionRequest{
		ImageURL:         imageURL,
		DocumentContents: documents,
		SystemPrompt:     firstNonEmpty(req.SystemPrompt, prefs[model.PreferenceSystemPrompt]),
		AssistantPrompt:  firstNonEmpty(req.AssistantPrompt, prefs[model.PreferenceAssistantPrompt]),
	}

	result, err := deps.AI.Detect(ctx, provider, ai.CacheKey(file.Path, detectReq), detectReq)
	if err != nil {
		log.Warn("Detection failed",
			zap.String("file_id", file.ID.String()),
			zap.String("provider", provider),
			zap.Error(err))
		switch {
		case errors.Is(err, ai.ErrNoProvider):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
		case errors.Is(err, ai.ErrUnknownProvider):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, imaging.ErrTooLarge):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Image dimensions are too large."})
		default:
			return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
		}
	}

	log.Info("Objects detected",
		zap.String("file_id", file.ID.String()),
		zap.String("provider", result.Provider),
		zap.Bool("cached", result.Cached),
		zap.Int("objects", len(result.Objects)))

	if result.Objects == nil {
		result.Objects = []ai.DetectedObject{}
	}
	return c.JSON(http.StatusOK, result)
}

// projectDocuments maps original filenames to extracted text for every
// processed file of the project except the one being analysed.
func projectDocuments(projectID, excludeFileID string) (map[string]string, error) {
	var files []model.File
	err := database.GetDB().
		Where("project_id = ? AND id <> ? AND contents IS NOT NULL", projectID, excludeFileID).
		Order("created_at").
		Find(&files).Error
	if err != nil {
		return nil, err
	}

	documents := make(map[string]string, len(files))
	for _, f := range files {
		if f.Contents == nil || *f.Contents == "" {
			continue
		}
		name := f.OriginalFilename
		if _, dup := documents[name]; dup {
			name = f.OriginalFilename + " (" + f.ID.String() + ")"
		}
		documents[name] = *f.Contents
	}
	return documents, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
