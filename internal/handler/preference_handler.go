package handler

import (
	"net/http"
	"time"

	"docvision-service/internal/model"
	"docvision-service/pkg/database"
	"docvision-service/pkg/logger"
	"docvision-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceItem struct {
	Key   string `json:"key" validate:"required,max=255"`
	Value string `json:"value"`
}

type PreferencesRequest struct {
	Preferences []PreferenceItem `json:"preferences" validate:"required,dive"`
}

func ListPreferences(c echo.Context) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var prefs []model.Preference
	if err := database.GetDB().Order("key").Find(&prefs).Error; err != nil {
		logger.FromContext(c).Error("Failed to list preferences", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]PreferencePublic, 0, len(prefs))
	for _, p := range prefs {
		result = append(result, toPreferencePublic(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"preferences": result})
}

// UpsertPreferences writes every given key and returns the stored rows
func UpsertPreferences(c echo.Context) error {
	log := logger.FromContext(c)

	var req PreferencesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	defer prometheus.TrackDBOperation("upsert")(time.Now())

	// Later entries win when a key repeats
	values := make(map[string]string, len(req.Preferences))
	keys := make([]string, 0, len(req.Preferences))
	for _, item := range req.Preferences {
		if _, seen := values[item.Key]; !seen {
			keys = append(keys, item.Key)
		}
		values[item.Key] = item.Value
	}

	var saved []model.Preference
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, key := range keys {
			pref := model.Preference{Key: key, Value: values[key], CreatedAt: now, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&pref).Error
			if err != nil {
				return err
			}
		}
		return tx.Where("key IN ?", keys).Order("key").Find(&saved).Error
	})
	if err != nil {
		log.Error("Failed to save preferences", zap.Error(err))
		return writeError(c, errDatabase)
	}

	result := make([]PreferencePublic, 0, len(saved))
	for _, p := range saved {
		result = append(result, toPreferencePublic(p))
	}
	log.Info("Preferences saved", zap.Strings("keys", keys))
	return c.JSON(http.StatusOK, echo.Map{"preferences": result})
}

// loadPreferenceValues returns the values of the requested keys that exist
func loadPreferenceValues(keys ...string) (map[string]string, error) {
	var prefs []model.Preference
	if err := database.GetDB().Where("key IN ?", keys).Find(&prefs).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(prefs))
	for _, p := range prefs {
		values[p.Key] = p.Value
	}
	return values, nil
}
