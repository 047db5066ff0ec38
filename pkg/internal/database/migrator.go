package database

import (
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.Series{},
	&models.Session{},
	&models.Attendee{},
	&models.Video{},
	&models.Conversation{},
	&models.Message{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(AutoMaintainRange...); err != nil {
		return err
	}

	return nil
}
