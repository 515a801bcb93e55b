package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type CaseModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID        string `gorm:"primaryKey"`
	CaseID    string `gorm:"not null;index"`
	SenderID  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	Content   string `gorm:"not null"`
	Payload   datatypes.JSON
	Stage     string
	CreatedAt time.Time `gorm:"not null;index"`
}

func (CaseModel) TableName() string    { return "cases" }
func (MessageModel) TableName() string { return "messages" }
