// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormRoundRecord is the history table row of a committed round.
type GormRoundRecord struct {
	gorm.Model
	GameID     string         `gorm:"index;not null"`
	Round      int            `gorm:"not null"`
	Letter     string         `gorm:"size:1;not null"`
	Categories []string       `gorm:"serializer:json;type:jsonb;not null"`
	Players    []PlayerResult `gorm:"serializer:json;type:jsonb;not null"`
}

// TableName pins the table name shared with the database/sql store.
func (GormRoundRecord) TableName() string {
	return "round_records"
}

// ToRecord converts a row back into the domain record.
func (r GormRoundRecord) ToRecord() RoundRecord {
	return RoundRecord{
		GameID:     r.GameID,
		Round:      r.Round,
		Letter:     Letter(r.Letter),
		Categories: r.Categories,
		Players:    r.Players,
		CreatedAt:  r.CreatedAt,
	}
}

// NewGormRoundRecord converts a domain record into a row.
func NewGormRoundRecord(rec RoundRecord) GormRoundRecord {
	row := GormRoundRecord{
		GameID:     rec.GameID,
		Round:      rec.Round,
		Letter:     string(rec.Letter),
		Categories: rec.Categories,
		Players:    rec.Players,
	}
	if !rec.CreatedAt.IsZero() {
		row.CreatedAt = rec.CreatedAt
	}
	return row
}
