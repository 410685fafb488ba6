package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/profile"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()

	want := []string{
		"status", "watch", "groups", "create", "join", "members", "rename", "leave",
		"read", "send", "history", "more", "unfocus", "resend", "vote", "unvote", "tally", "clear",
	}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"profile", "json", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestOutputJSON(t *testing.T) {
	opts := &rootOptions{JSON: true}
	var buf bytes.Buffer
	called := false

	opts.output(&buf, api.TallyResponse{Agreed: 1, Members: 2}, func() { called = true })

	assert.False(t, called)
	assert.JSONEq(t, `{"agreed":1,"members":2,"can_clear":false,"votes":null}`, buf.String())
}

func TestOutputText(t *testing.T) {
	opts := &rootOptions{}
	var buf bytes.Buffer
	called := false

	opts.output(&buf, api.Empty{}, func() { called = true })

	assert.True(t, called)
	assert.Empty(t, buf.String())
}

func TestConnectWithoutDaemon(t *testing.T) {
	t.Setenv(profile.EnvHome, t.TempDir())
	opts := &rootOptions{Profile: "main"}

	_, err := opts.connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no daemon running")
}

func TestInvalidProfileRejected(t *testing.T) {
	t.Setenv(profile.EnvHome, t.TempDir())
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--profile", "Bad Name", "groups"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid profile name")
}
