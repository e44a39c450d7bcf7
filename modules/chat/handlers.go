package chat

import (
	"context"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/go-monolith/mono"
)

// Request-reply service names exposed by the chat module.
const (
	ServiceSendMessage    = "send-message"
	ServiceEditMessage    = "edit-message"
	ServiceDeleteMessage  = "delete-message"
	ServiceAddReaction    = "add-reaction"
	ServiceRemoveReaction = "remove-reaction"
	ServiceMarkRead       = "mark-read"
	ServiceUnreadSummary  = "unread-summary"
	ServiceConversations  = "conversations"
	ServiceHistory        = "history"
	ServiceJoinChannel    = "join-channel"
	ServiceLeaveChannel   = "leave-channel"
	ServiceListChannels   = "list-channels"
)

func (m *ChatModule) sendMessage(ctx context.Context, req SendMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.Send(ctx, req)
	return MessageResponse{Message: msg, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) editMessage(ctx context.Context, req EditMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.Edit(ctx, req.MessageID, req.ActorID, req.Content)
	return MessageResponse{Message: msg, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) deleteMessage(ctx context.Context, req DeleteMessageRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.service.Delete(ctx, req.MessageID, req.ActorID)
	return AckResponse{OK: err == nil, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) addReaction(ctx context.Context, req ReactionRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.AddReaction(ctx, req.MessageID, req.ActorID, req.Emoji)
	return MessageResponse{Message: msg, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) removeReaction(ctx context.Context, req ReactionRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.RemoveReaction(ctx, req.MessageID, req.ActorID, req.Emoji)
	return MessageResponse{Message: msg, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) markRead(ctx context.Context, req MarkReadRequest, _ *mono.Msg) (MarkReadResponse, error) {
	var (
		marked int
		err    error
	)
	if len(req.MessageIDs) > 0 {
		marked, err = m.service.MarkRead(ctx, req.MessageIDs, req.UserID)
	} else {
		marked, err = m.service.MarkConversationRead(ctx, req.UserID, req.Channel, req.Counterpart)
	}
	return MarkReadResponse{Marked: marked, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) unreadSummary(ctx context.Context, req UserRequest, _ *mono.Msg) (UnreadResponse, error) {
	summary, err := m.service.UnreadSummary(ctx, req.UserID)
	return UnreadResponse{Summary: summary, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) conversations(ctx context.Context, req UserRequest, _ *mono.Msg) (ConversationsResponse, error) {
	convs, err := m.service.Conversations(ctx, req.UserID)
	return ConversationsResponse{Conversations: convs, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) history(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	page := Page{Before: req.Before, Limit: req.Limit}
	var err error
	resp := HistoryResponse{}
	if req.Channel != "" {
		resp.Messages, err = m.service.ChannelHistory(ctx, req.Channel, page)
	} else {
		resp.Messages, err = m.service.DirectHistory(ctx, req.UserID, req.Counterpart, page)
	}
	resp.Error = apperror.ToReply(err)
	return resp, nil
}

func (m *ChatModule) joinChannel(ctx context.Context, req ChannelRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.service.JoinChannel(ctx, req.Channel, req.UserID)
	return AckResponse{OK: err == nil, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) leaveChannel(ctx context.Context, req ChannelRequest, _ *mono.Msg) (AckResponse, error) {
	err := m.service.LeaveChannel(ctx, req.Channel, req.UserID)
	return AckResponse{OK: err == nil, Error: apperror.ToReply(err)}, nil
}

func (m *ChatModule) listChannels(ctx context.Context, req UserRequest, _ *mono.Msg) (ChannelsResponse, error) {
	channels, err := m.service.Channels(ctx, req.UserID)
	return ChannelsResponse{Channels: channels, Error: apperror.ToReply(err)}, nil
}
