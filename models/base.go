package models

import "time"

// Base carries the columns every persisted row has.
type Base struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// Record is implemented by pointers to every model embedding Base.
type Record interface {
	TableName() string
	RecordBase() *Base
}

func (b *Base) RecordBase() *Base {
	return b
}
