package graph

import "path"

// Root is the namespace every group lives under.
const Root = "groups"

func GroupRoot(group string) string { return path.Join(Root, group) }

func Members(group string) string { return path.Join(Root, group, "members") }

func Member(group, member string) string { return path.Join(Members(group), member) }

func Messages(group string) string { return path.Join(Root, group, "messages") }

func Message(group, msgID string) string { return path.Join(Messages(group), msgID) }

func Votes(group string) string { return path.Join(Root, group, "votes") }

func Vote(group, voter string) string { return path.Join(Votes(group), voter) }

// Name is where the group display name is announced.
func Name(group string) string { return path.Join(Root, group, "name") }

// ClearSignal is the advisory broadcast written after a history clear.
func ClearSignal(group string) string { return path.Join(Root, group, "signals", "clear") }
