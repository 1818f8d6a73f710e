// Package chat implements the per-room chat log and its moderation actions.
package chat

import (
	"context"
	"errors"
	"strings"

	"limelight/internal/events"
	"limelight/internal/models"
	"limelight/internal/observability"
	"limelight/internal/repository"

	"gorm.io/gorm"
)

const maxMessageLength = 500

// Service mediates chat posting, history and host-scoped bans for rooms.
type Service struct {
	messages repository.ChatRepository
	rooms    repository.RoomRepository
	users    repository.UserRepository
	pub      events.Publisher
	modlog   *observability.ModerationLogger
}

// NewService wires a chat Service.
func NewService(
	messages repository.ChatRepository,
	rooms repository.RoomRepository,
	users repository.UserRepository,
	pub events.Publisher,
) *Service {
	return &Service{
		messages: messages,
		rooms:    rooms,
		users:    users,
		pub:      pub,
		modlog:   observability.NewModerationLogger(),
	}
}

func (s *Service) getRoom(ctx context.Context, roomID uint) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	return room, nil
}

// PostMessage appends a message to a room's chat log and announces it.
// Posting fails with Forbidden when the author is banned by the room's host
// or when the room is not accepting chat.
func (s *Service) PostMessage(ctx context.Context, roomID, authorID uint, text string, parentID *uint) (*models.RoomMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("message text must not be empty")
	}
	if len(text) > maxMessageLength {
		return nil, models.NewValidationError("message text is too long")
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.AcceptsChat() {
		return nil, models.NewForbiddenError("chat is closed for this room")
	}

	banned, err := s.messages.IsBanned(ctx, room.HostID, authorID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if banned {
		return nil, models.NewForbiddenError("you are banned from this host's chat")
	}

	if parentID != nil {
		parent, err := s.messages.GetMessage(ctx, *parentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewValidationError("parent message does not exist")
			}
			return nil, models.NewInternalError(err)
		}
		if parent.RoomID != roomID {
			return nil, models.NewValidationError("parent message belongs to another room")
		}
	}

	author, err := s.users.GetByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("user", authorID)
		}
		return nil, models.NewInternalError(err)
	}

	msg := &models.RoomMessage{
		RoomID:   roomID,
		AuthorID: authorID,
		Text:     text,
		ParentID: parentID,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.pub.Publish(roomID, events.TypeNewMessage, events.NewMessagePayload{
		ID:       msg.ID,
		AuthorID: authorID,
		Author:   author.Username,
		Text:     msg.Text,
		TS:       msg.CreatedAt,
	})
	return msg, nil
}

// History returns a room's chat log in chronological order, with deleted
// messages redacted but present.
func (s *Service) History(ctx context.Context, roomID uint, limit, offset int) ([]models.RoomMessage, error) {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}
	messages, err := s.messages.GetHistory(ctx, roomID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make([]models.RoomMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Redacted())
	}
	return out, nil
}

// BanUser inserts or overwrites the (host, target) ban entry. The room's host
// may ban; so may callers with chat moderation capability. When messageID is
// given that message is soft-deleted first and message_removed precedes the
// ban announcement.
func (s *Service) BanUser(ctx context.Context, roomID, callerID uint, caps models.Capability, targetID uint, reason string, messageID *uint) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if callerID != room.HostID && !caps.Has(models.CapModerateAnyChat) {
		return models.NewForbiddenError("only the host can ban chatters")
	}
	if targetID == room.HostID {
		return models.NewValidationError("the host cannot be banned from their own chat")
	}

	if messageID != nil {
		msg, err := s.messages.GetMessage(ctx, *messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("message", *messageID)
			}
			return models.NewInternalError(err)
		}
		if msg.RoomID != roomID {
			return models.NewValidationError("message belongs to another room")
		}
		if err := s.messages.SoftDelete(ctx, msg.ID); err != nil {
			return models.NewInternalError(err)
		}
	}

	ban := &models.ChatBan{
		HostID:     room.HostID,
		UserID:     targetID,
		BannedByID: callerID,
		Reason:     reason,
	}
	if err := s.messages.UpsertBan(ctx, ban); err != nil {
		return models.NewInternalError(err)
	}

	action := "chat_ban"
	if messageID != nil {
		action = "chat_ban_with_delete"
	}
	s.modlog.LogAction(ctx, action, callerID, map[string]interface{}{
		"room_id": roomID,
		"host_id": room.HostID,
		"user_id": targetID,
		"reason":  reason,
	})

	if messageID != nil {
		s.pub.Publish(roomID, events.TypeMessageRemoved, events.MessageRemovedPayload{ID: *messageID})
	}
	s.pub.Publish(roomID, events.TypeChatBanned, events.ChatBannedPayload{UserID: targetID})
	return nil
}

// UnbanUser removes the (host, target) ban entry. Unbanning a user who was
// never banned is a no-op.
func (s *Service) UnbanUser(ctx context.Context, roomID, callerID uint, caps models.Capability, targetID uint) error {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if callerID != room.HostID && !caps.Has(models.CapModerateAnyChat) {
		return models.NewForbiddenError("only the host can unban chatters")
	}

	if err := s.messages.RemoveBan(ctx, room.HostID, targetID); err != nil {
		return models.NewInternalError(err)
	}

	s.modlog.LogAction(ctx, "chat_unban", callerID, map[string]interface{}{
		"room_id": roomID,
		"host_id": room.HostID,
		"user_id": targetID,
	})

	s.pub.Publish(roomID, events.TypeChatUnbanned, events.ChatUnbannedPayload{UserID: targetID})
	return nil
}

// ListBans returns the active chat bans issued by a room's host.
func (s *Service) ListBans(ctx context.Context, roomID, callerID uint, caps models.Capability) ([]*models.ChatBan, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if callerID != room.HostID && !caps.Has(models.CapModerateAnyChat) {
		return nil, models.NewForbiddenError("only the host can list chat bans")
	}
	bans, err := s.messages.ListBans(ctx, room.HostID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return bans, nil
}
