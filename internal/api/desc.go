package api

import (
	"context"

	"google.golang.org/grpc"
)

// Service names.
const (
	SessionServiceName = "huddle.v1.SessionService"
	GroupServiceName   = "huddle.v1.GroupService"
	MessageServiceName = "huddle.v1.MessageService"
	ClearServiceName   = "huddle.v1.ClearService"
)

// Method returns the full gRPC method name.
func Method(service, method string) string {
	return "/" + service + "/" + method
}

type SessionServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Watch(*WatchRequest, grpc.ServerStream) error
}

type GroupServer interface {
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
	Join(context.Context, *JoinRequest) (*GroupResponse, error)
	List(context.Context, *Empty) (*ListResponse, error)
	Members(context.Context, *GroupRequest) (*MembersResponse, error)
	MarkRead(context.Context, *GroupRequest) (*Empty, error)
	Rename(context.Context, *RenameRequest) (*Empty, error)
	Leave(context.Context, *GroupRequest) (*Empty, error)
}

type MessageServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Focus(context.Context, *GroupRequest) (*PageResponse, error)
	Unfocus(context.Context, *GroupRequest) (*Empty, error)
	LoadMore(context.Context, *GroupRequest) (*PageResponse, error)
	Resend(context.Context, *GroupRequest) (*ResendResponse, error)
}

type ClearServer interface {
	Vote(context.Context, *GroupRequest) (*Empty, error)
	CancelVote(context.Context, *GroupRequest) (*Empty, error)
	Tally(context.Context, *GroupRequest) (*TallyResponse, error)
	InitiateClear(context.Context, *GroupRequest) (*Empty, error)
}

// unary builds a method descriptor that decodes Req and calls fn on the
// registered server, honoring interceptors.
func unary[S any, Req any, Resp any](service, name string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Method(service, name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// WatchStream describes the server stream of SessionService.Watch.
var WatchStream = grpc.StreamDesc{
	StreamName:    "Watch",
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(WatchRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return srv.(SessionServer).Watch(in, stream)
	},
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "Status", SessionServer.Status),
	},
	Streams: []grpc.StreamDesc{WatchStream},
}

var GroupServiceDesc = grpc.ServiceDesc{
	ServiceName: GroupServiceName,
	HandlerType: (*GroupServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(GroupServiceName, "Create", GroupServer.Create),
		unary(GroupServiceName, "Join", GroupServer.Join),
		unary(GroupServiceName, "List", GroupServer.List),
		unary(GroupServiceName, "Members", GroupServer.Members),
		unary(GroupServiceName, "MarkRead", GroupServer.MarkRead),
		unary(GroupServiceName, "Rename", GroupServer.Rename),
		unary(GroupServiceName, "Leave", GroupServer.Leave),
	},
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "Send", MessageServer.Send),
		unary(MessageServiceName, "Focus", MessageServer.Focus),
		unary(MessageServiceName, "Unfocus", MessageServer.Unfocus),
		unary(MessageServiceName, "LoadMore", MessageServer.LoadMore),
		unary(MessageServiceName, "Resend", MessageServer.Resend),
	},
}

var ClearServiceDesc = grpc.ServiceDesc{
	ServiceName: ClearServiceName,
	HandlerType: (*ClearServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ClearServiceName, "Vote", ClearServer.Vote),
		unary(ClearServiceName, "CancelVote", ClearServer.CancelVote),
		unary(ClearServiceName, "Tally", ClearServer.Tally),
		unary(ClearServiceName, "InitiateClear", ClearServer.InitiateClear),
	},
}

// Register installs every service on srv.
func Register(srv *grpc.Server, session SessionServer, groups GroupServer, messages MessageServer, clear ClearServer) {
	srv.RegisterService(&SessionServiceDesc, session)
	srv.RegisterService(&GroupServiceDesc, groups)
	srv.RegisterService(&MessageServiceDesc, messages)
	srv.RegisterService(&ClearServiceDesc, clear)
}
