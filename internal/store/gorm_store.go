package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BIDS-Xu-Lab/opendx/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&CaseModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateCase inserts a new case record.
func (s *GormStore) CreateCase(c domain.Case) error {
	model := caseToModel(c)
	return s.db.Create(&model).Error
}

// SetCaseStatus updates the case status.
func (s *GormStore) SetCaseStatus(caseID string, status domain.CaseStatus) error {
	return s.db.Model(&CaseModel{}).
		Where("id = ?", caseID).
		Update("status", string(status)).Error
}

// AppendMessage records a message on a case.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListCases returns the owner's cases, newest first.
func (s *GormStore) ListCases(ownerID string, limit int) ([]domain.Case, error) {
	var models []CaseModel
	tx := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Case, 0, len(models))
	for _, m := range models {
		res = append(res, caseFromModel(m))
	}
	return res, nil
}

// GetCaseWithMessages returns one owned case with its ordered messages.
// A case owned by a different subject is reported as not found.
func (s *GormStore) GetCaseWithMessages(caseID, ownerID string) (domain.CaseWithMessages, bool, error) {
	var caseModel CaseModel
	if err := s.db.First(&caseModel, "id = ? AND owner_id = ?", caseID, ownerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.CaseWithMessages{}, false, nil
		}
		return domain.CaseWithMessages{}, false, err
	}
	var messageModels []MessageModel
	if err := s.db.Where("case_id = ?", caseID).Order("created_at ASC").Find(&messageModels).Error; err != nil {
		return domain.CaseWithMessages{}, false, err
	}
	messages := make([]domain.Message, 0, len(messageModels))
	for _, m := range messageModels {
		messages = append(messages, messageFromModel(m))
	}
	return domain.CaseWithMessages{
		Case:     caseFromModel(caseModel),
		Messages: messages,
	}, true, nil
}

func caseToModel(c domain.Case) CaseModel {
	return CaseModel{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

func caseFromModel(m CaseModel) domain.Case {
	return domain.Case{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		Status:    domain.CaseStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	model := MessageModel{
		ID:        msg.ID,
		CaseID:    msg.CaseID,
		SenderID:  msg.SenderID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Stage:     msg.Stage,
		CreatedAt: msg.CreatedAt,
	}
	if len(msg.Payload) > 0 {
		model.Payload = datatypes.JSON(msg.Payload)
	}
	return model
}

func messageFromModel(m MessageModel) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		CaseID:    m.CaseID,
		SenderID:  m.SenderID,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		Stage:     m.Stage,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Payload) > 0 {
		msg.Payload = json.RawMessage(m.Payload)
	}
	return msg
}
