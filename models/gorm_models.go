// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormProfile is the persisted player account.
type GormProfile struct {
	gorm.Model
	PlayerID   string                 `gorm:"uniqueIndex;not null"`
	Name       string                 `gorm:"uniqueIndex;not null"`
	AvatarSeed string                 `gorm:"not null"`
	Coins      int                    `gorm:"default:100"`
	Stats      map[string]interface{} `gorm:"type:jsonb"`
}

// GormGameRecord archives a finished match with its per-player results.
type GormGameRecord struct {
	gorm.Model
	RoomCode string                 `gorm:"index;not null"`
	GameType string                 `gorm:"not null"`
	Players  map[string]interface{} `gorm:"type:jsonb;not null"`
	Result   map[string]interface{} `gorm:"type:jsonb;not null"`
}
