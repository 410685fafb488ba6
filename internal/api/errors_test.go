package api

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/huddle/internal/invite"
	"github.com/matheus3301/huddle/internal/replica"
	"github.com/matheus3301/huddle/internal/wire"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", &wire.ValidationError{Field: "content", Reason: "empty"}, codes.InvalidArgument},
		{"capability", &invite.CapabilityError{Field: "pub", Reason: "missing"}, codes.InvalidArgument},
		{"unknown group", fmt.Errorf("send: %w", replica.ErrUnknownGroup), codes.NotFound},
		{"not open", replica.ErrGroupNotOpen, codes.FailedPrecondition},
		{"not focused", fmt.Errorf("more: %w", replica.ErrNotFocused), codes.FailedPrecondition},
		{"no consensus", &replica.ConsensusNotReachedError{Group: "g", Agreed: 1, Members: 2}, codes.FailedPrecondition},
		{"other", errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := grpcstatus.Code(toStatus(tt.err))
			if got != tt.want {
				t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &SendRequest{Group: "g", Content: "héllo", ContentType: "text"}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out SendRequest
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != *in {
		t.Errorf("round trip = %+v, want %+v", out, *in)
	}
	if c.Name() != CodecName {
		t.Errorf("Name() = %q", c.Name())
	}
}
