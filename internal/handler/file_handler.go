package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/filetype"
	"docvision-service/pkg/logger"
	"docvision-service/pkg/queue"
	"docvision-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var (
	errNoFileUploaded   = newAPIError(http.StatusBadRequest, "No file uploaded.")
	errUnsupportedType  = newAPIError(http.StatusBadRequest, "Unsupported file type.")
	errFileTooLarge     = newAPIError(http.StatusRequestEntityTooLarge, "File too large.")
	errStorage          = newAPIError(http.StatusBadGateway, "storage error")
	errQueueUnavailable = newAPIError(http.StatusServiceUnavailable, "Document extraction is not configured.")
)

func objectKey(projectID uuid.UUID, ext string) string {
	return "projects/" + projectID.String() + "/" + uuid.New().String() + ext
}

// UploadFile stores the multipart "file" field in the bucket and records it
func UploadFile(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, project, err := loadProject(c, user)
	if err != nil {
		return writeError(c, err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		prometheus.RecordUpload("rejected", 0)
		return writeError(c, errNoFileUploaded)
	}
	if header.Size > deps.MaxUploadBytes {
		prometheus.RecordUpload("rejected", 0)
		return writeError(c, errFileTooLarge)
	}

	src, err := header.Open()
	if err != nil {
		log.Error("Failed to open upload", zap.Error(err))
		return writeError(c, errNoFileUploaded)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, deps.MaxUploadBytes+1))
	if err != nil {
		log.Error("Failed to read upload", zap.Error(err))
		return writeError(c, errNoFileUploaded)
	}
	if int64(len(data)) > deps.MaxUploadBytes {
		prometheus.RecordUpload("rejected", 0)
		return writeError(c, errFileTooLarge)
	}
	if len(data) == 0 {
		prometheus.RecordUpload("rejected", 0)
		return writeError(c, errNoFileUploaded)
	}

	detected, err := filetype.Detect(data)
	if err != nil {
		log.Info("Rejected upload", zap.String("filename", header.Filename), zap.Error(err))
		prometheus.RecordUpload("rejected", 0)
		return writeError(c, errUnsupportedType)
	}

	ctx := c.Request().Context()
	key := objectKey(project.ID, detected.Extension)
	metadata := map[string]string{"filename": url.PathEscape(header.Filename)}
	if err := deps.Storage.Upload(ctx, key, data, detected.MimeType, metadata); err != nil {
		log.Error("Failed to store upload", zap.String("key", key), zap.Error(err))
		prometheus.RecordUpload("storage_error", 0)
		return writeError(c, errStorage)
	}

	file := model.File{
		Path:             key,
		Size:             int64(len(data)),
		MimeType:         detected.MimeType,
		OriginalFilename: header.Filename,
		ProjectID:        project.ID,
	}

	done := prometheus.TrackDBOperation("insert")
	err = database.GetDB().Create(&file).Error
	done(time.Now())
	if err != nil {
		log.Error("Failed to record upload", zap.Error(err))
		if delErr := deps.Storage.Delete(ctx, key); delErr != nil {
			log.Warn("Failed to remove orphaned object", zap.String("key", key), zap.Error(delErr))
		}
		prometheus.RecordUpload("db_error", 0)
		return writeError(c, errDatabase)
	}

	prometheus.RecordUpload("success", file.Size)
	log.Info("File uploaded",
		zap.String("file_id", file.ID.String()),
		zap.String("key", key),
		zap.String("mime_type", file.MimeType),
		zap.Int64("size", file.Size))

	if deps.Queue != nil {
		if err := deps.Queue.Enqueue(ctx, queue.ExtractionJob{FileID: file.ID}); err != nil {
			log.Warn("Failed to enqueue extraction", zap.String("file_id", file.ID.String()), zap.Error(err))
		}
	}

	return c.JSON(http.StatusCreated, toFilePublic(file))
}

func ListFiles(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, project, err := loadProject(c, user)
	if err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var files []model.File
	if err := database.GetDB().Where("project_id = ?", project.ID).Order("created_at").Find(&files).Error; err != nil {
		logger.FromContext(c).Error("Failed to list files", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]FilePublic, 0, len(files))
	for _, f := range files {
		result = append(result, toFilePublic(f))
	}
	return c.JSON(http.StatusOK, echo.Map{"files": result})
}

// GetFile returns the file with a presigned download URL
func GetFile(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, file, err := loadFile(c, user)
	if err != nil {
		return writeError(c, err)
	}

	signed, err := deps.Storage.PresignGet(c.Request().Context(), file.Path, deps.PresignTTL)
	if err != nil {
		logger.FromContext(c).Error("Failed to presign object", zap.String("key", file.Path), zap.Error(err))
		return writeError(c, errStorage)
	}

	result := toFilePublic(*file)
	result.URL = signed
	return c.JSON(http.StatusOK, result)
}

// DeleteFile removes the stored object and then the file row
func DeleteFile(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, file, err := loadFile(c, user)
	if err != nil {
		return writeError(c, err)
	}

	// The object goes first so a failed removal leaves the row for a retry
	if err := deps.Storage.Delete(c.Request().Context(), file.Path); err != nil {
		log.Error("Failed to delete stored object", zap.String("key", file.Path), zap.Error(err))
		return writeError(c, errStorage)
	}

	done := prometheus.TrackDBOperation("delete")
	err = database.GetDB().Delete(file).Error
	done(time.Now())
	if err != nil {
		log.Error("Failed to delete file", zap.Error(err))
		return writeError(c, errDatabase)
	}

	log.Info("File deleted", zap.String("file_id", file.ID.String()))
	return c.NoContent(http.StatusNoContent)
}

// ExtractFile queues the text extraction of a file again
func ExtractFile(c echo.Context) error {
	log := logger.FromContext(c)

	user, err := currentUser(c)
	if err != nil {
		return writeError(c, err)
	}

	_, file, err := loadFile(c, user)
	if err != nil {
		return writeError(c, err)
	}

	if deps.Queue == nil {
		return writeError(c, errQueueUnavailable)
	}

	if err := deps.Queue.Enqueue(c.Request().Context(), queue.ExtractionJob{FileID: file.ID}); err != nil {
		log.Error("Failed to enqueue extraction", zap.String("file_id", file.ID.String()), zap.Error(err))
		return writeError(c, errors.Join(errQueueUnavailable, err))
	}

	log.Info("Extraction queued", zap.String("file_id", file.ID.String()))
	return c.JSON(http.StatusAccepted, echo.Map{"message": "Extraction queued", "file_id": file.ID})
}
