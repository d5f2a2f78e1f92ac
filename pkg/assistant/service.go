package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ryan12324/openassistant/pkg/connectorx"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

const (
	deliveryCapability = "send_message"
	fallbackReply      = "Done."
	summarizerPrompt   = "Summarize the conversation below for your own future reference. Keep names, facts, decisions and open tasks. Reply with the summary only."
)

// Connectors is the part of connectorx.Registry the assistant needs.
type Connectors interface {
	HydrateUserIntegrations(ctx context.Context, userID kernel.UserID) connectorx.HydrationResult
	ActiveInstancesForUser(userID kernel.UserID) []connectorx.Instance
	CreateUserInstance(ctx context.Context, userID kernel.UserID, id string, cfg connectorx.Config) (connectorx.Instance, error)
}

// Enqueuer schedules follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobx.NewJob) (string, error)
}

// Service turns inbound messages into assistant replies and keeps
// conversation histories compact.
type Service struct {
	runtime    Runtime
	connectors Connectors
	store      ConversationStore
	jobs       Enqueuer
	opts       Options
}

func NewService(runtime Runtime, connectors Connectors, store ConversationStore, jobs Enqueuer, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		runtime:    runtime,
		connectors: connectors,
		store:      store,
		jobs:       jobs,
		opts:       o,
	}
}

// Register installs the service's handlers on client.
func (s *Service) Register(client *jobx.Client) {
	client.Register(JobTypeInbound, s.HandleInbound)
	client.Register(JobTypeCompaction, s.HandleCompaction)
}

// InboundResult is the job result of HandleInbound.
type InboundResult struct {
	ConversationID string                     `json:"conversationId"`
	Reply          string                     `json:"reply"`
	ToolCalls      int                        `json:"toolCalls"`
	Delivered      bool                       `json:"delivered"`
	Hydration      connectorx.HydrationResult `json:"hydration"`
}

// HandleInbound answers one inbound message, running connector tools as the
// model requests them, and delivers the reply through the source connector
// when the user has it connected.
func (s *Service) HandleInbound(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
	var msg InboundMessage
	if err := job.Decode(&msg); err != nil {
		return nil, assistantErrors.NewWithCause(ErrInvalidPayload, err).WithDetail("job_id", job.ID)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if !job.UserID.IsEmpty() && job.UserID != msg.UserID {
		return nil, assistantErrors.NewWithMessage(ErrInvalidPayload, "payload userId does not match job owner")
	}

	log := logx.WithFields(logx.Fields{
		"component": "assistant",
		"job_id":    job.ID,
		"user_id":   msg.UserID,
		"source":    msg.Source,
	})

	conv, err := s.store.FindOrCreate(ctx, msg.UserID, msg.Source, msg.ExternalChatID)
	if err != nil {
		return nil, err
	}

	hydration := s.connectors.HydrateUserIntegrations(ctx, msg.UserID)
	for _, f := range hydration.Failed {
		log.WithFields(logx.Fields{"connector": f.ID, "error": f.Error}).Warn("Connector unavailable for this turn")
	}
	s.ensureSource(ctx, msg)

	tools := NewToolset(s.connectors.ActiveInstancesForUser(msg.UserID))
	history, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	// The turn is stored in one append once the model has answered, so a
	// failed attempt leaves the history untouched for the retry.
	turn := []Message{NewUserMessage(userContent(msg))}
	reply, turn, calls, err := s.converse(ctx, s.systemPrompt(msg), history, turn, tools)
	if err != nil {
		return nil, err
	}
	turn = append(turn, NewAssistantMessage(reply))
	if err := s.store.Append(ctx, conv.ID, turn...); err != nil {
		return nil, err
	}

	delivered := s.deliver(ctx, tools, msg, reply)
	s.maybeCompact(ctx, conv, len(history)+len(turn))

	log.WithFields(logx.Fields{
		"conversation_id": conv.ID,
		"tool_calls":      calls.count,
		"delivered":       delivered,
	}).Info("Inbound message handled")

	return json.Marshal(InboundResult{
		ConversationID: conv.ID,
		Reply:          reply,
		ToolCalls:      calls.count,
		Delivered:      delivered,
		Hydration:      hydration,
	})
}

type callStats struct {
	count int
}

// converse runs the tool loop over history followed by turn and returns the
// reply with turn extended by the tool calls and results. Nothing is stored.
// After MaxToolIterations rounds the model is asked once more without tools
// so it has to answer in text.
func (s *Service) converse(ctx context.Context, system string, history, turn []Message, tools *Toolset) (string, []Message, callStats, error) {
	var stats callStats
	for round := 0; ; round++ {
		msgs := make([]Message, 0, len(history)+len(turn))
		msgs = append(append(msgs, history...), turn...)
		req := Request{System: system, Messages: msgs, MaxTokens: s.opts.MaxTokens}
		if round < s.opts.MaxToolIterations {
			req.Tools = tools.Specs()
		}

		reply, err := s.runtime.Chat(ctx, req)
		if err != nil {
			return "", turn, stats, assistantErrors.NewWithCause(ErrRuntimeFailed, err).WithDetail("round", round)
		}

		if len(reply.ToolCalls) == 0 || len(req.Tools) == 0 {
			content := strings.TrimSpace(reply.Content)
			if content == "" {
				if stats.count == 0 {
					return "", turn, stats, assistantErrors.New(ErrEmptyReply)
				}
				content = fallbackReply
			}
			return content, turn, stats, nil
		}

		turn = append(turn, NewAssistantMessage(reply.Content, reply.ToolCalls...))
		for _, call := range reply.ToolCalls {
			turn = append(turn, NewToolMessage(call.ID, tools.Execute(ctx, call)))
		}
		stats.count += len(reply.ToolCalls)
	}
}

func (s *Service) systemPrompt(msg InboundMessage) string {
	var b strings.Builder
	b.WriteString(s.opts.SystemPrompt)

	via := msg.DefinitionName
	if via == "" {
		via = msg.Source
	}
	fmt.Fprintf(&b, "\n\nThe user is writing through %s.", via)
	if msg.SenderName != "" {
		fmt.Fprintf(&b, " Their name is %s.", msg.SenderName)
	}
	return b.String()
}

func userContent(msg InboundMessage) string {
	if len(msg.Attachments) == 0 {
		return msg.Content
	}
	var b strings.Builder
	b.WriteString(msg.Content)
	b.WriteString("\n\nAttachments:")
	for _, a := range msg.Attachments {
		name := a.Name
		if name == "" {
			name = a.Type
		}
		fmt.Fprintf(&b, "\n- %s", name)
		if a.MimeType != "" {
			fmt.Fprintf(&b, " (%s)", a.MimeType)
		}
		if a.URL != "" {
			fmt.Fprintf(&b, " %s", a.URL)
		}
	}
	return strings.TrimSpace(b.String())
}

// ensureSource connects the inbound connector from the config snapshot
// carried by the message when hydration did not produce it.
func (s *Service) ensureSource(ctx context.Context, msg InboundMessage) {
	sc := msg.StoredConfig
	if sc == nil || !sc.Enabled || sc.Config == nil || sc.SkillID != msg.Source {
		return
	}
	for _, inst := range s.connectors.ActiveInstancesForUser(msg.UserID) {
		if inst.Definition().ID == msg.Source {
			return
		}
	}

	log := logx.WithFields(logx.Fields{"component": "assistant", "user_id": msg.UserID, "connector": msg.Source})
	cfg, err := connectorx.ParseConfig(*sc.Config)
	if err != nil {
		log.WithError(err).Warn("Ignoring unparsable source config")
		return
	}
	inst, err := s.connectors.CreateUserInstance(ctx, msg.UserID, msg.Source, cfg)
	if err != nil {
		log.WithError(err).Warn("Could not create source connector")
		return
	}
	if err := inst.Connect(ctx); err != nil {
		log.WithError(err).Warn("Could not connect source connector")
	}
}

func (s *Service) deliver(ctx context.Context, tools *Toolset, msg InboundMessage, reply string) bool {
	inst, ok := tools.Instance(msg.Source)
	if !ok {
		return false
	}
	if _, ok := inst.Definition().Capability(deliveryCapability); !ok {
		return false
	}

	args := map[string]any{"text": reply}
	if msg.ExternalChatID != "" {
		args["chat_id"] = msg.ExternalChatID
	}
	res, err := inst.ExecuteCapability(ctx, deliveryCapability, args)
	if err == nil && res != nil && res.Success {
		return true
	}

	entry := logx.WithFields(logx.Fields{"component": "assistant", "user_id": msg.UserID, "connector": msg.Source})
	if err != nil {
		entry = entry.WithError(err)
	} else if res != nil {
		entry = entry.WithField("output", res.Output)
	}
	entry.Warn("Reply delivery failed")
	return false
}

func (s *Service) maybeCompact(ctx context.Context, conv *Conversation, historyLen int) {
	if historyLen <= s.opts.CompactionThreshold {
		return
	}
	payload, err := json.Marshal(CompactConversation{ConversationID: conv.ID, UserID: conv.UserID})
	if err != nil {
		return
	}
	jobID, err := s.jobs.Enqueue(ctx, jobx.NewJob{Type: JobTypeCompaction, Payload: payload, UserID: conv.UserID})
	if err != nil {
		logx.WithFields(logx.Fields{"component": "assistant", "conversation_id": conv.ID}).
			WithError(err).Warn("Could not enqueue compaction")
		return
	}
	logx.WithFields(logx.Fields{"component": "assistant", "conversation_id": conv.ID, "job_id": jobID}).
		Debug("Compaction scheduled")
}

// CompactionResult is the job result of HandleCompaction.
type CompactionResult struct {
	ConversationID string `json:"conversationId"`
	Compacted      int    `json:"compacted"`
	Skipped        string `json:"skipped,omitempty"`
}

// HandleCompaction replaces all but the most recent messages of a
// conversation with a model-written summary.
func (s *Service) HandleCompaction(ctx context.Context, job *jobx.Job) (json.RawMessage, error) {
	var p CompactConversation
	if err := job.Decode(&p); err != nil {
		return nil, assistantErrors.NewWithCause(ErrInvalidPayload, err).WithDetail("job_id", job.ID)
	}
	if p.ConversationID == "" {
		return nil, assistantErrors.NewWithMessage(ErrInvalidPayload, "conversationId is required")
	}

	conv, err := s.store.Get(ctx, p.ConversationID)
	if errors.Is(err, assistantErrors.New(ErrConversationNotFound)) {
		return json.Marshal(CompactionResult{ConversationID: p.ConversationID, Skipped: "conversation not found"})
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != p.UserID {
		return nil, assistantErrors.New(ErrConversationForbidden).WithDetail("conversation_id", conv.ID)
	}

	msgs, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	cut := compactionCut(msgs, s.opts.KeepRecent)
	if cut < 2 {
		return json.Marshal(CompactionResult{ConversationID: conv.ID, Skipped: "history is short"})
	}

	reply, err := s.runtime.Chat(ctx, Request{
		System:    summarizerPrompt,
		Messages:  []Message{NewUserMessage(transcript(msgs[:cut]))},
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		return nil, assistantErrors.NewWithCause(ErrRuntimeFailed, err).WithDetail("conversation_id", conv.ID)
	}
	summary := strings.TrimSpace(reply.Content)
	if summary == "" {
		return nil, assistantErrors.New(ErrEmptyReply).WithDetail("conversation_id", conv.ID)
	}

	if err := s.store.Compact(ctx, conv.ID, cut, NewSystemMessage(summaryPrefix+summary)); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"component":       "assistant",
		"conversation_id": conv.ID,
		"compacted":       cut,
		"kept":            len(msgs) - cut,
	}).Info("Conversation compacted")
	return json.Marshal(CompactionResult{ConversationID: conv.ID, Compacted: cut})
}

// compactionCut is how many leading messages to summarize so that keep
// messages remain and no tool result is separated from its call.
func compactionCut(msgs []Message, keep int) int {
	cut := len(msgs) - keep
	if cut <= 0 {
		return 0
	}
	for cut > 0 && cut < len(msgs) && msgs[cut].Role == RoleTool {
		cut--
	}
	return cut
}

func transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch {
		case m.Role == RoleTool:
			fmt.Fprintf(&b, "tool result: %s\n", m.Content)
		case len(m.ToolCalls) > 0:
			names := make([]string, len(m.ToolCalls))
			for i, c := range m.ToolCalls {
				names[i] = c.Name
			}
			if m.Content != "" {
				fmt.Fprintf(&b, "assistant: %s\n", m.Content)
			}
			fmt.Fprintf(&b, "assistant called: %s\n", strings.Join(names, ", "))
		default:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}
