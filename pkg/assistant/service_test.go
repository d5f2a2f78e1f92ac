package assistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryan12324/openassistant/pkg/assistant"
	"github.com/ryan12324/openassistant/pkg/assistant/assistantmemory"
	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

// scriptedRuntime replays canned replies and records every request.
type scriptedRuntime struct {
	mu       sync.Mutex
	replies  []*assistant.Reply
	err      error
	requests []assistant.Request
}

func (r *scriptedRuntime) Chat(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.replies) == 0 {
		return &assistant.Reply{Content: "fallback"}, nil
	}
	next := r.replies[0]
	r.replies = r.replies[1:]
	return next, nil
}

// chatConnector is a connector with send_message and echo capabilities.
type chatConnector struct {
	*connectorx.Base
	mu   sync.Mutex
	sent []map[string]any
}

func chatDefinition() connectorx.Definition {
	return connectorx.Definition{
		ID:   "chat",
		Name: "Chat",
		Capabilities: []connectorx.Capability{
			{ID: "send_message", Description: "send"},
			{ID: "echo", Description: "echo back"},
		},
		SupportsInbound:  true,
		SupportsOutbound: true,
	}
}

func (c *chatConnector) Connect(ctx context.Context) error    { return c.Open(ctx, nil) }
func (c *chatConnector) Disconnect(ctx context.Context) error { return c.Close(ctx, nil) }

func (c *chatConnector) ExecuteCapability(ctx context.Context, capID string, args map[string]any) (*connectorx.CapabilityResult, error) {
	if res := c.Guard(capID); res != nil {
		return res, nil
	}
	switch capID {
	case "send_message":
		c.mu.Lock()
		c.sent = append(c.sent, args)
		c.mu.Unlock()
		return &connectorx.CapabilityResult{Success: true, Output: "sent"}, nil
	case "echo":
		if args["boom"] == true {
			return nil, errors.New("echo exploded")
		}
		return &connectorx.CapabilityResult{Success: true, Output: connectorx.Config(args).String("text")}, nil
	}
	return connectorx.UnknownCapability(), nil
}

type staticConfigs map[kernel.UserID][]connectorx.StoredConfig

func (s staticConfigs) ListEnabledForUser(ctx context.Context, userID kernel.UserID) ([]connectorx.StoredConfig, error) {
	return s[userID], nil
}

type recordingEnqueuer struct {
	jobs []jobx.NewJob
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, job jobx.NewJob) (string, error) {
	e.jobs = append(e.jobs, job)
	return "job-compact", nil
}

type harness struct {
	runtime  *scriptedRuntime
	store    *assistantmemory.MemoryStore
	registry *connectorx.Registry
	jobs     *recordingEnqueuer
	svc      *assistant.Service

	mu         sync.Mutex
	connectors []*chatConnector
}

func newHarness(t *testing.T, configs staticConfigs, opts ...assistant.Option) *harness {
	t.Helper()
	h := &harness{
		runtime: &scriptedRuntime{},
		store:   assistantmemory.NewMemoryStore(),
		jobs:    &recordingEnqueuer{},
	}
	factory := func(spec connectorx.InstanceSpec) (connectorx.Instance, error) {
		c := &chatConnector{Base: connectorx.NewBase(spec)}
		h.mu.Lock()
		h.connectors = append(h.connectors, c)
		h.mu.Unlock()
		return c, nil
	}
	h.registry = connectorx.NewRegistry(
		connectorx.MustCatalog(chatDefinition()),
		map[string]connectorx.Factory{"chat": factory},
		configs,
	)
	h.svc = assistant.NewService(h.runtime, h.registry, h.store, h.jobs, opts...)
	return h
}

func strptr(s string) *string { return &s }

func chatEnabled(userID kernel.UserID) staticConfigs {
	return staticConfigs{userID: {{UserID: userID, SkillID: "chat", Enabled: true, Config: strptr(`{}`)}}}
}

func inboundJob(t *testing.T, msg assistant.InboundMessage) *jobx.Job {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return &jobx.Job{ID: "j1", Type: assistant.JobTypeInbound, Payload: payload, UserID: msg.UserID}
}

func TestHandleInbound_RepliesAndDelivers(t *testing.T) {
	h := newHarness(t, chatEnabled("u1"))
	h.runtime.replies = []*assistant.Reply{{Content: "Hi Ada!"}}

	raw, err := h.svc.HandleInbound(context.Background(), inboundJob(t, assistant.InboundMessage{
		Source:         "chat",
		SenderID:       "s1",
		SenderName:     "Ada",
		Content:        "hello",
		ExternalChatID: "room-1",
		UserID:         "u1",
		DefinitionName: "Chat",
	}))
	require.NoError(t, err)

	var res assistant.InboundResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "Hi Ada!", res.Reply)
	assert.True(t, res.Delivered)
	assert.Equal(t, []string{"chat"}, res.Hydration.Loaded)

	require.Len(t, h.connectors, 1)
	assert.Equal(t, []map[string]any{{"text": "Hi Ada!", "chat_id": "room-1"}}, h.connectors[0].sent)

	req := h.runtime.requests[0]
	assert.Contains(t, req.System, "writing through Chat")
	assert.Contains(t, req.System, "Their name is Ada")
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "chat__send_message", req.Tools[0].Name)

	msgs, err := h.store.Messages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, assistant.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi Ada!", msgs[1].Content)
}

func TestHandleInbound_ToolLoop(t *testing.T) {
	h := newHarness(t, chatEnabled("u1"))
	h.runtime.replies = []*assistant.Reply{
		{ToolCalls: []assistant.ToolCall{
			{ID: "t1", Name: "chat__echo", Arguments: json.RawMessage(`{"text":"ping"}`)},
			{ID: "t2", Name: "chat__echo", Arguments: json.RawMessage(`{"boom":true}`)},
			{ID: "t3", Name: "ghost__run"},
		}},
		{Content: "All done"},
	}

	raw, err := h.svc.HandleInbound(context.Background(), inboundJob(t, assistant.InboundMessage{
		Source: "chat", Content: "echo ping", UserID: "u1",
	}))
	require.NoError(t, err)

	var res assistant.InboundResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "All done", res.Reply)
	assert.Equal(t, 3, res.ToolCalls)

	second := h.runtime.requests[1]
	require.Len(t, second.Messages, 5)
	assert.Len(t, second.Messages[1].ToolCalls, 3)

	var ping, boom, ghost connectorx.CapabilityResult
	require.NoError(t, json.Unmarshal([]byte(second.Messages[2].Content), &ping))
	require.NoError(t, json.Unmarshal([]byte(second.Messages[3].Content), &boom))
	require.NoError(t, json.Unmarshal([]byte(second.Messages[4].Content), &ghost))
	assert.Equal(t, connectorx.CapabilityResult{Success: true, Output: "ping"}, ping)
	assert.Equal(t, "echo exploded", boom.Output)
	assert.Equal(t, connectorx.OutputNotConnected, ghost.Output)
}

func TestHandleInbound_ToolIterationsAreBounded(t *testing.T) {
	h := newHarness(t, chatEnabled("u1"), assistant.WithMaxToolIterations(2))
	loop := &assistant.Reply{ToolCalls: []assistant.ToolCall{{ID: "t", Name: "chat__echo", Arguments: json.RawMessage(`{"text":"x"}`)}}}
	h.runtime.replies = []*assistant.Reply{loop, loop, {Content: "forced answer"}}

	raw, err := h.svc.HandleInbound(context.Background(), inboundJob(t, assistant.InboundMessage{
		Source: "chat", Content: "loop", UserID: "u1",
	}))
	require.NoError(t, err)

	var res assistant.InboundResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "forced answer", res.Reply)
	require.Len(t, h.runtime.requests, 3)
	assert.Empty(t, h.runtime.requests[2].Tools)
}

func TestHandleInbound_NoConnectorsStillReplies(t *testing.T) {
	h := newHarness(t, staticConfigs{})
	h.runtime.replies = []*assistant.Reply{{Content: "plain"}}

	raw, err := h.svc.HandleInbound(context.Background(), inboundJob(t, assistant.InboundMessage{
		Source: "chat", Content: "hi", UserID: "u2",
	}))
	require.NoError(t, err)

	var res assistant.InboundResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.False(t, res.Delivered)
	assert.Empty(t, h.runtime.requests[0].Tools)
}

func TestHandleInbound_StoredConfigConnectsSource(t *testing.T) {
	h := newHarness(t, staticConfigs{})
	h.runtime.replies = []*assistant.Reply{{Content: "hey"}}

	raw, err := h.svc.HandleInbound(context.Background(), inboundJob(t, assistant.InboundMessage{
		Source:       "chat",
		Content:      "hi",
		UserID:       "u3",
		StoredConfig: &connectorx.StoredConfig{UserID: "u3", SkillID: "chat", Enabled: true, Config: strptr(`{}`)},
	}))
	require.NoError(t, err)

	var res assistant.InboundResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.True(t, res.Delivered)
	_, ok := h.registry.UserInstance("u3", "chat")
	assert.True(t, ok)
}

func TestHandleInbound_Errors(t *testing.T) {
	h := newHarness(t, staticConfigs{})
	ctx := context.Background()

	_, err := h.svc.HandleInbound(ctx, &jobx.Job{ID: "bad", Payload: json.RawMessage(`[`)})
	assert.Error(t, err)

	_, err = h.svc.HandleInbound(ctx, inboundJob(t, assistant.InboundMessage{Source: "chat", UserID: "u1"}))
	assert.Error(t, err)

	job := inboundJob(t, assistant.InboundMessage{Source: "chat", Content: "x", UserID: "u1"})
	job.UserID = "someone-else"
	_, err = h.svc.HandleInbound(ctx, job)
	assert.Error(t, err)

	h.runtime.err = errors.New("model down")
	_, err = h.svc.HandleInbound(ctx, inboundJob(t, assistant.InboundMessage{Source: "chat", Content: "x", UserID: "u1"}))
	assert.Error(t, err)

	h.runtime.err = nil
	h.runtime.replies = []*assistant.Reply{{Content: "  "}}
	_, err = h.svc.HandleInbound(ctx, inboundJob(t, assistant.InboundMessage{Source: "chat", Content: "x", UserID: "u1"}))
	assert.Error(t, err)
}

func TestHandleInbound_RetryAfterFailureKeepsHistoryClean(t *testing.T) {
	h := newHarness(t, chatEnabled("u1"))
	ctx := context.Background()
	job := inboundJob(t, assistant.InboundMessage{Source: "chat", Content: "remember me", ExternalChatID: "r", UserID: "u1"})

	h.runtime.replies = []*assistant.Reply{
		{ToolCalls: []assistant.ToolCall{{ID: "t1", Name: "chat__echo", Arguments: json.RawMessage(`{"text":"x"}`)}}},
	}

	// the tool round succeeds, then the model goes down
	h.svc = assistant.NewService(&failAfter{inner: h.runtime, ok: 1}, h.registry, h.store, h.jobs)
	_, err := h.svc.HandleInbound(ctx, job)
	require.Error(t, err)

	conv, err := h.store.FindOrCreate(ctx, "u1", "chat", "r")
	require.NoError(t, err)
	msgs, err := h.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	h.svc = assistant.NewService(h.runtime, h.registry, h.store, h.jobs)
	h.runtime.requests = nil
	h.runtime.replies = []*assistant.Reply{{Content: "got it"}}
	_, err = h.svc.HandleInbound(ctx, job)
	require.NoError(t, err)

	require.Len(t, h.runtime.requests, 1)
	require.Len(t, h.runtime.requests[0].Messages, 1)
	assert.Equal(t, "remember me", h.runtime.requests[0].Messages[0].Content)

	msgs, err = h.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, assistant.RoleUser, msgs[0].Role)
	assert.Equal(t, "got it", msgs[1].Content)
}

// failAfter passes the first ok calls through and fails the rest.
type failAfter struct {
	inner assistant.Runtime
	ok    int
	calls int
}

func (f *failAfter) Chat(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	f.calls++
	if f.calls > f.ok {
		return nil, errors.New("model down")
	}
	return f.inner.Chat(ctx, req)
}

func TestHandleInbound_SchedulesCompaction(t *testing.T) {
	h := newHarness(t, staticConfigs{}, assistant.WithCompaction(3, 1))
	ctx := context.Background()

	send := func() {
		_, err := h.svc.HandleInbound(ctx, inboundJob(t, assistant.InboundMessage{Source: "chat", Content: "x", UserID: "u1"}))
		require.NoError(t, err)
	}

	send()
	assert.Empty(t, h.jobs.jobs)
	send()
	require.Len(t, h.jobs.jobs, 1)

	job := h.jobs.jobs[0]
	assert.Equal(t, assistant.JobTypeCompaction, job.Type)
	assert.Equal(t, kernel.UserID("u1"), job.UserID)

	var p assistant.CompactConversation
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.NotEmpty(t, p.ConversationID)
}

func compactionJob(t *testing.T, convID string, userID kernel.UserID) *jobx.Job {
	t.Helper()
	payload, err := json.Marshal(assistant.CompactConversation{ConversationID: convID, UserID: userID})
	require.NoError(t, err)
	return &jobx.Job{ID: "c1", Type: assistant.JobTypeCompaction, Payload: payload, UserID: userID}
}

func TestHandleCompaction_SummarizesOlderMessages(t *testing.T) {
	h := newHarness(t, staticConfigs{}, assistant.WithCompaction(10, 2))
	ctx := context.Background()

	conv, err := h.store.FindOrCreate(ctx, "u1", "chat", "")
	require.NoError(t, err)
	require.NoError(t, h.store.Append(ctx, conv.ID,
		assistant.NewUserMessage("my name is Ada"),
		assistant.NewAssistantMessage("hi Ada"),
		assistant.NewAssistantMessage("", assistant.ToolCall{ID: "t1", Name: "chat__echo"}),
		assistant.NewToolMessage("t1", "ok"),
		assistant.NewAssistantMessage("latest"),
	))
	h.runtime.replies = []*assistant.Reply{{Content: "User is Ada."}}

	raw, err := h.svc.HandleCompaction(ctx, compactionJob(t, conv.ID, "u1"))
	require.NoError(t, err)

	var res assistant.CompactionResult
	require.NoError(t, json.Unmarshal(raw, &res))
	// The tool result stays with its call, so only two messages are summarized.
	assert.Equal(t, 2, res.Compacted)

	msgs, err := h.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, assistant.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "User is Ada.")
	assert.Equal(t, "t1", msgs[2].ToolCallID)

	assert.Contains(t, h.runtime.requests[0].Messages[0].Content, "user: my name is Ada")
}

func TestHandleCompaction_SkipsAndRejects(t *testing.T) {
	h := newHarness(t, staticConfigs{}, assistant.WithCompaction(10, 5))
	ctx := context.Background()

	raw, err := h.svc.HandleCompaction(ctx, compactionJob(t, "gone", "u1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "conversation not found")

	conv, err := h.store.FindOrCreate(ctx, "u1", "chat", "")
	require.NoError(t, err)
	require.NoError(t, h.store.Append(ctx, conv.ID, assistant.NewUserMessage("a")))

	raw, err = h.svc.HandleCompaction(ctx, compactionJob(t, conv.ID, "u1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "history is short")
	assert.Empty(t, h.runtime.requests)

	_, err = h.svc.HandleCompaction(ctx, compactionJob(t, conv.ID, "intruder"))
	assert.Error(t, err)
}

func TestRegisterInstallsBothHandlers(t *testing.T) {
	h := newHarness(t, staticConfigs{})
	client := jobx.NewClient(nil)
	h.svc.Register(client)
	assert.ElementsMatch(t, []string{assistant.JobTypeInbound, assistant.JobTypeCompaction}, client.Types())
}
