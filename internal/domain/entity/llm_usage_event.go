package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LLMUsageEvent 单次 LLM 调用的用量流水
// 只记录 token 与耗时，不落任何故事内容。
type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey"`
	WriterID         string    `json:"writer_id" gorm:"type:varchar(128);index;not null"`
	SessionID        string    `json:"session_id" gorm:"type:varchar(64);index"`
	Workflow         string    `json:"workflow" gorm:"type:varchar(64);not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string    `json:"model" gorm:"type:varchar(64);not null"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}

// BeforeCreate 生成主键
func (e *LLMUsageEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// TotalTokens 返回总 token 数
func (e *LLMUsageEvent) TotalTokens() int {
	return e.TokensPrompt + e.TokensCompletion
}
