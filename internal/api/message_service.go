package api

import (
	"context"

	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/wire"
)

// MessageService implements sending and the paged message view.
type MessageService struct {
	engine *replica.Engine
}

// NewMessageService creates a new message service.
func NewMessageService(engine *replica.Engine) *MessageService {
	return &MessageService{engine: engine}
}

func (s *MessageService) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	ct := wire.ContentType(req.ContentType)
	if ct == "" {
		ct = wire.Text
	}
	if ct == wire.LeaveNotification {
		return nil, toStatus(&wire.ValidationError{Field: "content_type", Reason: "leave notifications are sent by Leave"})
	}
	m, err := s.engine.Send(ctx, req.Group, req.Content, ct)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendResponse{Message: messageToAPI(*m)}, nil
}

func (s *MessageService) Focus(_ context.Context, req *GroupRequest) (*PageResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	msgs, err := s.engine.Focus(req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.page(req.Group, msgs)
}

func (s *MessageService) Unfocus(_ context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.Unfocus(req.Group))
}

// LoadMore returns the next older page, oldest first.
func (s *MessageService) LoadMore(_ context.Context, req *GroupRequest) (*PageResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	msgs, err := s.engine.LoadMore(req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.page(req.Group, msgs)
}

func (s *MessageService) Resend(ctx context.Context, req *GroupRequest) (*ResendResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	n, err := s.engine.Resend(ctx, req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ResendResponse{Count: n}, nil
}

func (s *MessageService) page(group string, msgs []store.Message) (*PageResponse, error) {
	more, err := s.engine.HasMore(group)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &PageResponse{Messages: make([]Message, 0, len(msgs)), HasMore: more}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToAPI(m))
	}
	return resp, nil
}

func messageToAPI(m store.Message) Message {
	return Message{
		ID:          m.ID,
		MsgID:       m.MsgID,
		SenderPub:   m.SenderPub,
		SenderAlias: m.SenderAlias,
		Content:     m.Content,
		ContentType: string(m.ContentType),
		Timestamp:   m.Timestamp,
		Status:      string(m.Status),
	}
}
