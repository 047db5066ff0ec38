package database

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func NewSource() (*gorm.DB, error) {
	dialector := postgres.Open(viper.GetString("database.dsn"))
	source, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: viper.GetString("database.prefix"),
		},
		Logger: logger.New(&log.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  lo.Ternary(viper.GetBool("debug.database"), logger.Info, logger.Warn),
		}),
	})
	if err != nil {
		return nil, err
	}

	if raw, err := source.DB(); err == nil {
		raw.SetMaxOpenConns(viper.GetInt("database.max_open_conns"))
		raw.SetConnMaxIdleTime(5 * time.Minute)
	}

	return source, nil
}
