package api

import (
	"context"

	"github.com/matheus3301/huddle/internal/replica"
)

// ClearService implements the clear-history vote.
type ClearService struct {
	engine *replica.Engine
}

// NewClearService creates a new clear service.
func NewClearService(engine *replica.Engine) *ClearService {
	return &ClearService{engine: engine}
}

func (s *ClearService) Vote(ctx context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.Vote(ctx, req.Group))
}

func (s *ClearService) CancelVote(ctx context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.CancelVote(ctx, req.Group))
}

func (s *ClearService) Tally(ctx context.Context, req *GroupRequest) (*TallyResponse, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	t, err := s.engine.Tally(req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &TallyResponse{Agreed: t.Agreed, Members: t.Members, CanClear: t.CanClear, Votes: make([]Vote, 0, len(t.Votes))}
	for _, v := range t.Votes {
		resp.Votes = append(resp.Votes, Vote{Voter: v.VoterID, Agreed: v.Agreed, Timestamp: v.Timestamp})
	}
	// The clear signal is advisory; a graph that cannot be read leaves it out.
	if sig, ok, err := s.engine.LastClear(ctx, req.Group); err == nil && ok {
		resp.LastClearBy = sig.By
		resp.LastClearAt = sig.Timestamp
	}
	return resp, nil
}

func (s *ClearService) InitiateClear(ctx context.Context, req *GroupRequest) (*Empty, error) {
	if err := requireGroup(req.Group); err != nil {
		return nil, err
	}
	if err := s.engine.InitiateClear(ctx, req.Group); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}
