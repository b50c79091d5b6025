package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/queue"
	"github.com/parium/parium-api/internal/store"
)

// Enqueuer holds messages for redelivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) (queue.Item, error)
}

type SendResult struct {
	Message *models.Message `json:"message"`
	// Queued is set when the message was accepted for later delivery.
	Queued bool `json:"queued"`
}

type MessageService struct {
	repo     MessageRepository
	queue    Enqueuer
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewMessageService(repo MessageRepository, q Enqueuer, notifier Notifier, log logrus.FieldLogger) *MessageService {
	return &MessageService{repo: repo, queue: q, notifier: notifier, log: log, now: time.Now}
}

func (s *MessageService) participant(ctx context.Context, caller Caller, conversationID string) (*models.Conversation, string, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, "", fromStore(err)
	}
	switch caller.UserID {
	case conv.CandidateID:
		return conv, conv.EmployerID, nil
	case conv.EmployerID:
		return conv, conv.CandidateID, nil
	default:
		return nil, "", fmt.Errorf("%w: not a participant", ErrForbidden)
	}
}

// Send stores a message. Resending an id with the same content is a no-op;
// reusing it for different content is ErrConflict. When the write fails for
// any other reason than bad input, the message goes to the offline queue and the result is marked
// queued.
func (s *MessageService) Send(ctx context.Context, caller Caller, id, conversationID, body string) (*SendResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("message body is empty")
	}
	_, recipient, err := s.participant(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	msg := &models.Message{
		Base:           models.Base{ID: id, CreatedAt: s.now()},
		ConversationID: conversationID,
		SenderID:       caller.UserID,
		RecipientID:    recipient,
		Body:           body,
	}

	err = s.repo.CreateMessage(ctx, msg)
	if err == nil {
		return &SendResult{Message: msg}, nil
	}
	if errors.Is(err, store.ErrInvalidReference) || errors.Is(err, store.ErrConflict) {
		return nil, fromStore(err)
	}

	s.log.WithError(err).WithField("message_id", id).Warn("message write failed, queueing")
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, qerr := s.queue.Enqueue(qctx, queue.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}); qerr != nil {
		return nil, fmt.Errorf("send message: %w (queue: %v)", err, qerr)
	}
	return &SendResult{Message: msg, Queued: true}, nil
}

// Deliver writes a queued message. It is the queue's send function.
func (s *MessageService) Deliver(ctx context.Context, qm queue.Message) error {
	err := s.repo.CreateMessage(ctx, &models.Message{
		Base:           models.Base{ID: qm.ID, CreatedAt: qm.CreatedAt},
		ConversationID: qm.ConversationID,
		SenderID:       qm.SenderID,
		RecipientID:    qm.RecipientID,
		Body:           qm.Body,
	})
	if errors.Is(err, store.ErrInvalidReference) || errors.Is(err, store.ErrConflict) {
		return queue.Permanent(err)
	}
	return err
}

// Dropped tells the sender that a queued message was given up on.
func (s *MessageService) Dropped(item queue.Item, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"message_id": item.Message.ID,
		"attempts":   item.Attempts,
	}).Error("queued message dropped")
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if nerr := s.notifier.Notify(ctx, item.Message.SenderID, Notification{
		Title: "Meddelandet kunde inte skickas",
		Body:  truncate(item.Message.Body, 80),
		URL:   "/messages/" + item.Message.ConversationID,
	}); nerr != nil {
		s.log.WithError(nerr).Warn("notify sender about dropped message")
	}
}

// Conversation lists the latest messages and marks the caller's unread ones read.
func (s *MessageService) Conversation(ctx context.Context, caller Caller, conversationID string, limit int) ([]models.Message, error) {
	if _, _, err := s.participant(ctx, caller, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.MessagesInConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	n, err := s.repo.MarkConversationRead(ctx, conversationID, caller.UserID, now)
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("mark conversation read")
		return msgs, nil
	}
	if n > 0 {
		for i := range msgs {
			if msgs[i].RecipientID == caller.UserID && msgs[i].ReadAt == nil {
				msgs[i].ReadAt = &now
			}
		}
	}
	return msgs, nil
}

// Unread counts unread messages per conversation; Total is their sum.
func (s *MessageService) Unread(ctx context.Context, caller Caller) (Tally, error) {
	counts, err := s.repo.UnreadByConversation(ctx, caller.UserID)
	if err != nil {
		return Tally{}, err
	}
	return NewTally(counts), nil
}

// NotifyRecipient pushes a new-message notification. Wired to the realtime
// feed so messages written by other clients are announced too.
func (s *MessageService) NotifyRecipient(ctx context.Context, msg models.Message) {
	if s.notifier == nil || msg.RecipientID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, msg.RecipientID, Notification{
		Title: "Nytt meddelande",
		Body:  truncate(msg.Body, 80),
		URL:   "/messages/" + msg.ConversationID,
	}); err != nil {
		s.log.WithError(err).WithField("recipient_id", msg.RecipientID).Warn("push new message")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
