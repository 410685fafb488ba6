package api

// Group is a cached group as seen by clients.
type Group struct {
	Pub      string `json:"pub"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joined_at"`
	Phase    string `json:"phase,omitempty"`
}

type Member struct {
	Pub      string `json:"pub"`
	Alias    string `json:"alias"`
	JoinedAt int64  `json:"joined_at"`
	Self     bool   `json:"self,omitempty"`
}

type Message struct {
	ID          int64  `json:"id"`
	MsgID       string `json:"msg_id"`
	SenderPub   string `json:"sender_pub"`
	SenderAlias string `json:"sender_alias"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
}

// Entry is one row of the group list.
type Entry struct {
	GroupID      string `json:"group_id"`
	Name         string `json:"name"`
	LastActivity int64  `json:"last_activity"`
	Preview      string `json:"preview"`
	Unread       bool   `json:"unread"`
}

type Vote struct {
	Voter     string `json:"voter"`
	Agreed    bool   `json:"agreed"`
	Timestamp int64  `json:"timestamp"`
}

type Event struct {
	Kind      string            `json:"kind"`
	Group     string            `json:"group,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type Empty struct{}

// GroupRequest addresses a single group.
type GroupRequest struct {
	Group string `json:"group"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Profile  string  `json:"profile"`
	Pub      string  `json:"pub"`
	Alias    string  `json:"alias"`
	UptimeMs int64   `json:"uptime_ms"`
	Groups   []Group `json:"groups"`
}

// WatchRequest filters the event stream. Prefix matches event kinds; Group,
// if set, restricts to one group.
type WatchRequest struct {
	Prefix string `json:"prefix"`
	Group  string `json:"group"`
}

type CreateRequest struct {
	Name string `json:"name"`
	QR   bool   `json:"qr"`
}

type CreateResponse struct {
	Group  Group  `json:"group"`
	Invite string `json:"invite"`
	QR     string `json:"qr,omitempty"`
}

type JoinRequest struct {
	Invite string `json:"invite"`
}

type GroupResponse struct {
	Group Group `json:"group"`
}

type ListResponse struct {
	Entries []Entry `json:"entries"`
}

type MembersResponse struct {
	Members []Member `json:"members"`
}

type RenameRequest struct {
	Group string `json:"group"`
	Name  string `json:"name"`
}

type SendRequest struct {
	Group       string `json:"group"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type SendResponse struct {
	Message Message `json:"message"`
}

type PageResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type ResendResponse struct {
	Count int `json:"count"`
}

type TallyResponse struct {
	Agreed      int    `json:"agreed"`
	Members     int    `json:"members"`
	CanClear    bool   `json:"can_clear"`
	Votes       []Vote `json:"votes"`
	LastClearBy string `json:"last_clear_by,omitempty"`
	LastClearAt int64  `json:"last_clear_at,omitempty"`
}
