// Append-only SQL log of processed edit events and the outcome of each enforcement action.
package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/editguard/editguard/automod/engine"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/ledger"

	"gorm.io/gorm"
)

type EditAudit struct {
	gorm.Model
	ChatID       int64 `gorm:"index:idx_edit_audit_msg"`
	MessageID    int64 `gorm:"index:idx_edit_audit_msg"`
	ActorID      int64 `gorm:"index"`
	ActorName    string
	OriginalText string
	EditedText   string
	ObservedAt   time.Time
	Decision     string
	Actions      []ActionAudit
}

type ActionAudit struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	EditAuditID uint  `gorm:"index"`
	ChatID      int64 `gorm:"index:idx_action_audit_msg"`
	MessageID   int64 `gorm:"index:idx_action_audit_msg"`
	Action      string
	Status      string
	Reason      string
	Attempts    int
}

type GormStore struct {
	db *gorm.DB
}

var _ engine.AuditSink = (*GormStore)(nil)

// Creates the store, migrating tables as needed.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&EditAudit{}, &ActionAudit{}); err != nil {
		return nil, fmt.Errorf("migrating audit tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) RecordEdit(ctx context.Context, evt event.EditEvent, decision string, outcomes []ledger.Annotation) error {
	rec := EditAudit{
		ChatID:       evt.ChatID,
		MessageID:    evt.MessageID,
		ActorID:      evt.ActorID,
		ActorName:    evt.ActorName,
		OriginalText: evt.OriginalText,
		EditedText:   evt.EditedText,
		ObservedAt:   evt.ObservedAt,
		Decision:     decision,
	}
	for _, ann := range outcomes {
		rec.Actions = append(rec.Actions, ActionAudit{
			CreatedAt: ann.At,
			ChatID:    evt.ChatID,
			MessageID: evt.MessageID,
			Action:    ann.Action,
			Status:    ann.Status,
			Reason:    ann.Reason,
			Attempts:  ann.Attempts,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("writing edit audit: %w", err)
	}
	return nil
}

// Returns all audit records for a message, oldest first, with their action rows.
func (s *GormStore) History(ctx context.Context, chatID, messageID int64) ([]EditAudit, error) {
	var out []EditAudit
	err := s.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("reading edit audit: %w", err)
	}
	return out, nil
}
