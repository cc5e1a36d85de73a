package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/stream"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageStatus string

const (
	MessageComplete  MessageStatus = "complete"
	MessageStreaming MessageStatus = "streaming"
	MessageError     MessageStatus = "error"
)

type ChatMessage struct {
	ID          string              `json:"id"`
	Role        Role                `json:"role"`
	Content     string              `json:"content"`
	Status      MessageStatus       `json:"status"`
	EditActions []stream.EditAction `json:"editActions,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// ChatContext is sent with every message so replies fit the video.
type ChatContext struct {
	Platform    string `json:"platform,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Analysis    string `json:"analysis,omitempty"`
}

// ChatState is one of ChatIdle, ChatStreaming or ChatFailed.
type ChatState interface {
	Status() Status
	chatState()
}

type ChatIdle struct{}

type ChatStreaming struct {
	MessageID string
}

type ChatFailed struct {
	Failure
	MessageID string
}

func (ChatIdle) Status() Status      { return StatusIdle }
func (ChatStreaming) Status() Status { return StatusStreaming }
func (ChatFailed) Status() Status    { return StatusError }

func (ChatIdle) chatState()      {}
func (ChatStreaming) chatState() {}
func (ChatFailed) chatState()    {}

type ChatStreamer interface {
	ChatStream(ctx context.Context, req gateway.ChatRequest) (io.ReadCloser, error)
}

type ChatSnapshot struct {
	Status    Status        `json:"status"`
	Messages  []ChatMessage `json:"messages"`
	Context   ChatContext   `json:"context"`
	Streaming string        `json:"streamingMessageId,omitempty"`
	Error     *Failure      `json:"error,omitempty"`
	Epoch     uint64        `json:"epoch"`
	Seq       uint64        `json:"seq"`
}

// Chat is the send → stream → extract edit action workflow.
type Chat struct {
	mu       sync.Mutex
	gw       ChatStreamer
	logger   *slog.Logger
	notifier Notifier[ChatSnapshot]
	now      func() time.Time

	epoch    uint64
	seq      uint64
	state    ChatState
	messages []ChatMessage
	context  ChatContext
}

func NewChat(gw ChatStreamer, logger *slog.Logger) *Chat {
	return &Chat{
		gw:     gw,
		logger: logger.With("workflow", "chat"),
		now:    time.Now,
		state:  ChatIdle{},
	}
}

func (w *Chat) Subscribe(fn func(ChatSnapshot)) func() {
	return w.notifier.Subscribe(fn)
}

func (w *Chat) State() ChatState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Chat) Snapshot() ChatSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Chat) snapshotLocked() ChatSnapshot {
	snap := ChatSnapshot{
		Status:   w.state.Status(),
		Messages: w.messagesLocked(),
		Context:  w.context,
		Epoch:    w.epoch,
		Seq:      w.seq,
	}
	switch st := w.state.(type) {
	case ChatStreaming:
		snap.Streaming = st.MessageID
	case ChatFailed:
		f := st.Failure
		snap.Error = &f
	}
	return snap
}

func (w *Chat) messagesLocked() []ChatMessage {
	out := make([]ChatMessage, len(w.messages))
	for i, m := range w.messages {
		m.EditActions = append([]stream.EditAction(nil), m.EditActions...)
		out[i] = m
	}
	return out
}

func (w *Chat) Messages() []ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.messagesLocked()
}

func (w *Chat) Message(id string) (ChatMessage, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.indexLocked(id); i >= 0 {
		return w.messages[i], true
	}
	return ChatMessage{}, false
}

func (w *Chat) indexLocked(id string) int {
	for i := range w.messages {
		if w.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// transitionAndUnlock must be called with mu held. A nil next keeps the
// current state and only publishes.
func (w *Chat) transitionAndUnlock(next ChatState) {
	from := w.state.Status()
	if next != nil {
		w.state = next
	}
	to := w.state.Status()
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	logTransition(w.logger, from, to)
	w.notifier.publish(snap.Seq, snap)
}

func (w *Chat) SetContext(c ChatContext) {
	w.mu.Lock()
	w.context = c
	w.transitionAndUnlock(nil)
}

// SendMessage appends the user message, streams the assistant reply into a
// placeholder message and finally extracts an edit action from it. Failing
// to extract an action is logged and never fails the message.
func (w *Chat) SendMessage(ctx context.Context, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, &ValidationError{Field: "message", Message: "message is empty"}
	}

	w.mu.Lock()
	if st, ok := w.state.(ChatStreaming); ok {
		w.mu.Unlock()
		return ChatMessage{}, &PreconditionError{Op: "send message", Requirement: "reply " + st.MessageID + " is still streaming"}
	}
	w.epoch++
	epoch := w.epoch
	now := w.now()
	w.messages = append(w.messages, ChatMessage{
		ID: uuid.NewString(), Role: RoleUser, Content: text, Status: MessageComplete, CreatedAt: now,
	})
	req := gateway.ChatRequest{
		Messages:    w.historyLocked(),
		Context:     w.context.Analysis,
		Platform:    w.context.Platform,
		ContentType: w.context.ContentType,
	}
	replyID := uuid.NewString()
	w.messages = append(w.messages, ChatMessage{
		ID: replyID, Role: RoleAssistant, Status: MessageStreaming, CreatedAt: now,
	})
	w.transitionAndUnlock(ChatStreaming{MessageID: replyID})

	body, err := w.gw.ChatStream(ctx, req)
	if err != nil {
		return w.fail(epoch, replyID, err)
	}
	defer body.Close()

	var rec *stream.Reconciler
	rec = stream.NewReconciler(w.logger, func(string) {
		w.mu.Lock()
		i := w.indexLocked(replyID)
		if w.epoch != epoch || i < 0 {
			w.mu.Unlock()
			return
		}
		w.messages[i].Content = rec.Text()
		w.transitionAndUnlock(nil)
	})

	res, err := stream.Consume(ctx, body, rec)
	if err != nil {
		return w.fail(epoch, replyID, err)
	}
	if res.ActionErr != nil {
		w.logger.Warn("ignoring unparseable edit action", "message_id", replyID, "error", res.ActionErr)
	}

	w.mu.Lock()
	i := w.indexLocked(replyID)
	if w.epoch != epoch || i < 0 {
		w.mu.Unlock()
		w.logger.Warn("discarding stale chat reply", "message_id", replyID)
		return ChatMessage{}, ErrSuperseded
	}
	msg := &w.messages[i]
	msg.Content = res.Text
	msg.Status = MessageComplete
	if res.Action != nil {
		msg.EditActions = []stream.EditAction{*res.Action}
	}
	reply := *msg
	w.logger.Info("chat reply complete",
		"message_id", replyID,
		"chars", len(res.Text),
		"edit_actions", len(reply.EditActions),
		"dropped_lines", res.Dropped,
	)
	w.transitionAndUnlock(ChatIdle{})
	return reply, nil
}

// historyLocked is the conversation sent upstream; streaming and failed
// replies are left out.
func (w *Chat) historyLocked() []gateway.ChatTurn {
	turns := make([]gateway.ChatTurn, 0, len(w.messages))
	for _, m := range w.messages {
		if m.Status != MessageComplete {
			continue
		}
		content := m.Content
		if m.Role == RoleAssistant {
			content = stream.StripFence(content)
		}
		turns = append(turns, gateway.ChatTurn{Role: string(m.Role), Content: content})
	}
	return turns
}

func (w *Chat) fail(epoch uint64, replyID string, err error) (ChatMessage, error) {
	w.mu.Lock()
	i := w.indexLocked(replyID)
	if w.epoch != epoch || i < 0 {
		w.mu.Unlock()
		return ChatMessage{}, ErrSuperseded
	}
	w.logger.Error("chat reply failed", "message_id", replyID, "error", err)
	failure := failureFrom(err)
	msg := &w.messages[i]
	msg.Status = MessageError
	msg.Error = failure.Message
	reply := *msg
	w.transitionAndUnlock(ChatFailed{Failure: failure, MessageID: replyID})
	return reply, fmt.Errorf("send message: %w", err)
}

// Clear drops the conversation and supersedes a reply in flight.
func (w *Chat) Clear() {
	w.mu.Lock()
	w.epoch++
	w.messages = nil
	w.transitionAndUnlock(ChatIdle{})
}
