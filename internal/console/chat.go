package console

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

// ChatRole is the author of a transcript entry.
type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// Greeting seeds every transcript.
const Greeting = "Hello! I'm your AI security assistant. Ask me about vulnerabilities, threats, or security analysis."

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role       ChatRole `json:"role"`
	Text       string   `json:"text"`
	References []string `json:"references,omitempty"`
}

type chatState struct {
	owner      string
	status     Status
	err        error
	transcript []ChatMessage
	draft      string
}

func seededChat(owner string) chatState {
	return chatState{
		owner:      owner,
		transcript: []ChatMessage{{Role: ChatAssistant, Text: Greeting}},
	}
}

// withMessage appends one entry.
func (s chatState) withMessage(m ChatMessage) chatState {
	t := make([]ChatMessage, 0, len(s.transcript)+1)
	t = append(t, s.transcript...)
	s.transcript = append(t, m)
	return s
}

type chatResult struct {
	msg *ChatMessage
	err error
}

type chatRequest struct {
	ctx  context.Context
	text string
	tag  string
	done chan chatResult
}

// ChatPanel keeps an append-only transcript. Queries go through a
// per-conversation FIFO with one request in flight, so assistant replies
// land in the order their questions were sent.
type ChatPanel struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder

	mu       sync.Mutex
	state    chatState
	queue    []*chatRequest
	draining bool
}

func newChatPanel(b Backend, logger *slog.Logger, rec Recorder) *ChatPanel {
	return &ChatPanel{
		backend:  b,
		logger:   logger,
		recorder: rec,
		state:    seededChat(""),
	}
}

// Page returns PageChat.
func (p *ChatPanel) Page() Page { return PageChat }

// Activate does nothing: the transcript is built by Send.
func (p *ChatPanel) Activate(context.Context) error { return nil }

// SetDraft stores the input buffer.
func (p *ChatPanel) SetDraft(text string) {
	p.mu.Lock()
	p.state.draft = text
	p.mu.Unlock()
}

// Draft returns the input buffer.
func (p *ChatPanel) Draft() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.draft
}

// Send appends the user message at once, queues the query, and waits for
// the reply. The reply is appended only on success. Blank input is
// rejected without touching the transcript. The draft is cleared
// whatever the outcome.
func (p *ChatPanel) Send(ctx context.Context, text string) (*ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &api.ValidationError{Field: "message", Reason: "is empty"}
	}

	req := &chatRequest{ctx: ctx, text: text, done: make(chan chatResult, 1)}

	p.mu.Lock()
	if p.state.owner == "" {
		p.mu.Unlock()
		return nil, ErrNoSession
	}
	req.tag = p.state.owner
	p.state = p.state.withMessage(ChatMessage{Role: ChatUser, Text: text})
	p.state.draft = ""
	p.state.status = StatusLoading
	p.state.err = nil
	p.queue = append(p.queue, req)
	if !p.draining {
		p.draining = true
		go p.drain()
	}
	p.mu.Unlock()

	select {
	case res := <-req.done:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain serves the queue one request at a time until it is empty.
func (p *ChatPanel) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.draining = false
			p.mu.Unlock()
			return
		}
		req := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		req.done <- p.serve(req)
	}
}

func (p *ChatPanel) serve(req *chatRequest) chatResult {
	reply, err := p.backend.Chat(req.ctx, req.text)

	p.mu.Lock()
	if p.state.owner != req.tag {
		p.mu.Unlock()
		p.logger.Debug("discarding stale chat reply", "error", err)
		return chatResult{err: ErrStale}
	}
	if err != nil {
		p.state.status = StatusError
		p.state.err = err
		p.mu.Unlock()
		p.logger.Warn("chat query failed", "error", err)
		return chatResult{err: err}
	}
	msg := ChatMessage{
		Role:       ChatAssistant,
		Text:       reply.Response,
		References: append([]string(nil), reply.References...),
	}
	p.state = p.state.withMessage(msg)
	if len(p.queue) == 0 && p.state.status != StatusError {
		p.state.status = StatusIdle
	}
	p.mu.Unlock()

	record(req.ctx, p.recorder, p.logger, req.tag, "chat", map[string]any{
		"query":      req.text,
		"response":   msg.Text,
		"references": msg.References,
	})
	return chatResult{msg: &msg}
}

// Transcript returns a copy of the transcript.
func (p *ChatPanel) Transcript() []ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChatMessage, len(p.state.transcript))
	copy(out, p.state.transcript)
	return out
}

// Status reports whether a query is in flight or the last one failed.
func (p *ChatPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.status
}

// Err is the last query failure.
func (p *ChatPanel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.err
}

// reset reseeds the transcript and fails every query still queued for
// the previous owner. A query already in flight is discarded when it
// returns.
func (p *ChatPanel) reset(owner string) {
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.state = seededChat(owner)
	p.mu.Unlock()

	for _, req := range pending {
		req.done <- chatResult{err: ErrStale}
	}
}
