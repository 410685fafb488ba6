package api

import (
	"context"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/view"
)

// GroupService implements group lifecycle and the group list.
type GroupService struct {
	engine *replica.Engine
	view   *view.Service
}

// NewGroupService creates a new group service.
func NewGroupService(engine *replica.Engine, v *view.Service) *GroupService {
	return &GroupService{engine: engine, view: v}
}

func (s *GroupService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if req.Name == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "name is required")
	}
	g, inv, err := s.engine.Create(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &CreateResponse{Group: groupToAPI(*g), Invite: inv}
	if req.QR {
		qr, err := invite.QR(inv)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.QR = qr
	}
	return resp, nil
}

func (s *GroupService) Join(ctx context.Context, req *JoinRequest) (*GroupResponse, error) {
	g, err := s.engine.Join(ctx, req.Invite)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GroupResponse{Group: groupToAPI(*g)}, nil
}

func (s *GroupService) List(_ context.Context, _ *Empty) (*ListResponse, error) {
	entries, err := s.view.List()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListResponse{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, Entry{
			GroupID:      e.GroupID,
			Name:         e.Name,
			LastActivity: e.LastActivity,
			Preview:      e.Preview,
			Unread:       e.Unread,
		})
	}
	return resp, nil
}

func (s *GroupService) Members(_ context.Context, req *GroupRequest) (*MembersResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	members, err := s.engine.Members(req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	self := s.engine.Self().Pub
	resp := &MembersResponse{Members: make([]Member, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, Member{
			Pub:      m.MemberPub,
			Alias:    m.Alias,
			JoinedAt: m.JoinedAt,
			Self:     m.MemberPub == self,
		})
	}
	return resp, nil
}

func (s *GroupService) MarkRead(_ context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	if err := s.engine.MarkRead(req.Group); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *GroupService) Rename(ctx context.Context, req *RenameRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	if err := s.engine.Rename(ctx, req.Group, req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *GroupService) Leave(ctx context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	if err := s.engine.Leave(ctx, req.Group); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}
