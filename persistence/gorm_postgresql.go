// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/landfluss/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL connects to dsn and migrates the history table.
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormRoundRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) SaveRound(ctx context.Context, rec models.RoundRecord) error {
	row := models.NewGormRoundRecord(rec)
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *GormPostgreSQL) ListRounds(ctx context.Context, gameID string) ([]models.RoundRecord, error) {
	var rows []models.GormRoundRecord
	err := p.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("round, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	rounds := make([]models.RoundRecord, 0, len(rows))
	for _, row := range rows {
		rounds = append(rounds, row.ToRecord())
	}
	return rounds, nil
}

// Transaction runs fn in a database transaction.
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
