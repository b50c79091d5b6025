package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// CreateMessage inserts msg. A replay of an already stored message is
// accepted and msg is filled from the stored row; an id that belongs to a
// different message is ErrConflict.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := translate(s.db.WithContext(ctx).Create(msg).Error)
	if !errors.Is(err, ErrConflict) {
		return err
	}
	var existing models.Message
	if err := s.db.WithContext(ctx).First(&existing, "id = ?", msg.ID).Error; err != nil {
		return translate(err)
	}
	if existing.ConversationID != msg.ConversationID || existing.SenderID != msg.SenderID || existing.Body != msg.Body {
		return fmt.Errorf("%w: message id %s is taken", ErrConflict, msg.ID)
	}
	*msg = existing
	return nil
}

func (s *Store) MessagesInConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.Message
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	// newest page, oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, recipientID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

// UnreadByConversation counts unread messages addressed to recipientID per conversation.
func (s *Store) UnreadByConversation(ctx context.Context, recipientID string) (map[string]int64, error) {
	var rows []struct {
		ConversationID string
		Count          int64
	}
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("conversation_id, count(*) as count").
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Group("conversation_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.ConversationID] = r.Count
	}
	return out, nil
}
