package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// chatAdapter implements ChatPort over the chat module's request-reply
// services.
type chatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new adapter for chat services.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat adapter requires non-nil ServiceContainer")
	}
	return &chatAdapter{container: container}
}

type replied interface {
	MessageResponse | AckResponse | MarkReadResponse | UnreadResponse |
		ConversationsResponse | HistoryResponse | ChannelsResponse
}

func call[Req any, Resp replied](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*Resp, error) {
	var resp Resp
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", service, err)
	}
	if err := replyOf(&resp).Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func replyOf(resp any) *apperror.Reply {
	switch r := resp.(type) {
	case *MessageResponse:
		return r.Error
	case *AckResponse:
		return r.Error
	case *MarkReadResponse:
		return r.Error
	case *UnreadResponse:
		return r.Error
	case *ConversationsResponse:
		return r.Error
	case *HistoryResponse:
		return r.Error
	case *ChannelsResponse:
		return r.Error
	}
	return nil
}

func (a *chatAdapter) Send(ctx context.Context, req *SendMessageRequest) (*message.Message, error) {
	resp, err := call[SendMessageRequest, MessageResponse](ctx, a.container, ServiceSendMessage, req)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (a *chatAdapter) Edit(ctx context.Context, req *EditMessageRequest) (*message.Message, error) {
	resp, err := call[EditMessageRequest, MessageResponse](ctx, a.container, ServiceEditMessage, req)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (a *chatAdapter) Delete(ctx context.Context, messageID, actorID string) error {
	_, err := call[DeleteMessageRequest, AckResponse](ctx, a.container, ServiceDeleteMessage,
		&DeleteMessageRequest{MessageID: messageID, ActorID: actorID})
	return err
}

func (a *chatAdapter) AddReaction(ctx context.Context, req *ReactionRequest) (*message.Message, error) {
	resp, err := call[ReactionRequest, MessageResponse](ctx, a.container, ServiceAddReaction, req)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (a *chatAdapter) RemoveReaction(ctx context.Context, req *ReactionRequest) (*message.Message, error) {
	resp, err := call[ReactionRequest, MessageResponse](ctx, a.container, ServiceRemoveReaction, req)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (a *chatAdapter) MarkRead(ctx context.Context, req *MarkReadRequest) (int, error) {
	resp, err := call[MarkReadRequest, MarkReadResponse](ctx, a.container, ServiceMarkRead, req)
	if err != nil {
		return 0, err
	}
	return resp.Marked, nil
}

func (a *chatAdapter) UnreadSummary(ctx context.Context, userID string) (*UnreadSummary, error) {
	resp, err := call[UserRequest, UnreadResponse](ctx, a.container, ServiceUnreadSummary, &UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return &resp.Summary, nil
}

func (a *chatAdapter) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	resp, err := call[UserRequest, ConversationsResponse](ctx, a.container, ServiceConversations, &UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (a *chatAdapter) History(ctx context.Context, req *HistoryRequest) ([]message.Message, error) {
	resp, err := call[HistoryRequest, HistoryResponse](ctx, a.container, ServiceHistory, req)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *chatAdapter) JoinChannel(ctx context.Context, channel, userID string) error {
	_, err := call[ChannelRequest, AckResponse](ctx, a.container, ServiceJoinChannel,
		&ChannelRequest{Channel: channel, UserID: userID})
	return err
}

func (a *chatAdapter) LeaveChannel(ctx context.Context, channel, userID string) error {
	_, err := call[ChannelRequest, AckResponse](ctx, a.container, ServiceLeaveChannel,
		&ChannelRequest{Channel: channel, UserID: userID})
	return err
}

func (a *chatAdapter) Channels(ctx context.Context, userID string) ([]string, error) {
	resp, err := call[UserRequest, ChannelsResponse](ctx, a.container, ServiceListChannels, &UserRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return resp.Channels, nil
}
