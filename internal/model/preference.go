package model

import "time"

// Well-known preference keys read by the detection endpoint
const (
	PreferenceAIProvider      = "ai_provider"
	PreferenceSystemPrompt    = "system_prompt"
	PreferenceAssistantPrompt = "assistant_prompt"
)

// Preference is a global key/value setting
type Preference struct {
	Key       string    `json:"key" gorm:"type:varchar(255);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
