package app

import (
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

// AutoMigrate 同步表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Campaign{},
		&model.Ad{},
		&model.AdEvent{},
		&model.Developer{},
	)
}
