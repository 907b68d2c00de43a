package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// CollectedMessage is one entry of a merged follow-up's collected_messages
// metadata: the raw buffered inbound message, flattened for serialization.
type CollectedMessage struct {
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp"`
	Media     []string          `json:"media,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const (
	metaKeyCollectedMessages = "collected_messages"
	metaKeyCollectedCount    = "collected_count"
)

// DecodeCollectedMessages extracts the collected_messages list a merged
// follow-up carries in its Metadata (see MessageBus.CompleteInboundTurn).
func DecodeCollectedMessages(meta map[string]string) []CollectedMessage {
	if meta == nil {
		return nil
	}
	raw, ok := meta[metaKeyCollectedMessages]
	if !ok {
		return nil
	}
	var out []CollectedMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// sessionBuffer holds inbound messages buffered while a turn for their
// session_key is in flight.
type sessionBuffer struct {
	messages []InboundMessage
}

// MessageBus decouples channel adapters from the agent core. It provides:
//
//   - an inbound FIFO queue with per-session buffering: while the agent is
//     processing a message for session K, further publishes for K are
//     appended to a buffer instead of entering the queue; when the turn
//     completes, the buffer is drained into one merged follow-up message
//     enqueued at the tail;
//   - an outbound FIFO queue with channel subscription and a one-shot
//     delivery-acknowledgement waiter keyed by request_id.
//
// All buffering state lives under one mutex, matching the single-process
// cooperative-scheduling model this bus is designed for.
type MessageBus struct {
	mu sync.Mutex

	inbound   []InboundMessage
	inboundCh chan struct{} // signaled (non-blocking) whenever inbound gains an item

	outbound   []OutboundMessage
	outboundCh chan struct{}

	activeSession string
	buffers       map[string]*sessionBuffer

	waitersMu sync.Mutex
	waiters   map[string]*Waiter

	subsMu sync.RWMutex
	subs   map[string][]func(OutboundMessage)

	closeOnce sync.Once
	done      chan struct{}

	log *slog.Logger
}

// Waiter is a one-shot future for outbound delivery acknowledgement.
type Waiter struct {
	ch     chan waiterResult
	once   sync.Once
	result waiterResult
}

type waiterResult struct {
	success bool
	errMsg  string
}

// Wait blocks until the waiter is resolved or ctx is done.
func (w *Waiter) Wait(ctx context.Context) (success bool, errMsg string, err error) {
	select {
	case r := <-w.ch:
		return r.success, r.errMsg, nil
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

func (w *Waiter) resolve(success bool, errMsg string) {
	w.once.Do(func() {
		w.result = waiterResult{success: success, errMsg: errMsg}
		w.ch <- w.result
		close(w.ch)
	})
}

func New() *MessageBus {
	return &MessageBus{
		inboundCh:  make(chan struct{}, 1),
		outboundCh: make(chan struct{}, 1),
		buffers:    make(map[string]*sessionBuffer),
		waiters:    make(map[string]*Waiter),
		subs:       make(map[string][]func(OutboundMessage)),
		done:       make(chan struct{}),
		log:        slog.Default(),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PublishInbound publishes a message from a channel to the agent. If msg's
// session_key equals the currently active session (the one being consumed
// right now), the message is buffered instead of enqueued.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	key := inboundSessionKey(msg)

	b.mu.Lock()
	if b.activeSession != "" && key == b.activeSession {
		buf := b.buffers[key]
		if buf == nil {
			buf = &sessionBuffer{}
			b.buffers[key] = buf
		}
		buf.messages = append(buf.messages, msg)
		n := len(buf.messages)
		b.mu.Unlock()
		b.log.Debug("buffered inbound message", "session_key", key, "buffered", n)
		return
	}
	b.inbound = append(b.inbound, msg)
	b.mu.Unlock()
	notify(b.inboundCh)
}

// ConsumeInbound blocks until an inbound message is available or ctx is
// done. On success, the message's session_key becomes the active session,
// so that concurrent publishes for the same session buffer until
// CompleteInboundTurn is called.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	for {
		b.mu.Lock()
		if len(b.inbound) > 0 {
			msg := b.inbound[0]
			b.inbound = b.inbound[1:]
			b.activeSession = inboundSessionKey(msg)
			b.mu.Unlock()
			return msg, true
		}
		b.mu.Unlock()

		select {
		case <-b.inboundCh:
			continue
		case <-b.done:
			return InboundMessage{}, false
		case <-ctx.Done():
			return InboundMessage{}, false
		case <-time.After(time.Second):
			// 1s poll so Stop()/ctx cancellation is noticed promptly even
			// if nothing new has been published.
			continue
		}
	}
}

// CompleteInboundTurn marks the turn for sessionKey as finished: any buffered
// follow-ups are merged into one InboundMessage and enqueued at the tail,
// then the active-session marker is cleared.
func (b *MessageBus) CompleteInboundTurn(sessionKey string) {
	b.mu.Lock()
	if b.activeSession != sessionKey {
		b.mu.Unlock()
		return
	}
	buf := b.buffers[sessionKey]
	delete(b.buffers, sessionKey)
	b.activeSession = ""

	var merged InboundMessage
	hasMerged := false
	if buf != nil && len(buf.messages) > 0 {
		merged = mergeBufferedMessages(buf.messages)
		hasMerged = true
		b.inbound = append(b.inbound, merged)
	}
	b.mu.Unlock()

	if hasMerged {
		b.log.Debug("merged buffered inbound messages", "session_key", sessionKey)
		notify(b.inboundCh)
	}
}

func inboundSessionKey(msg InboundMessage) string {
	if msg.SessionKey != "" {
		return msg.SessionKey
	}
	return msg.Channel + ":" + msg.ChatID
}

// mergeBufferedMessages builds one follow-up message from a buffered run, per
// the bus buffering protocol: content is newline-joined with a
// "[<sender_id>] <content>" prefix per entry (no prefix if exactly one
// entry); media is the concatenation preserving order; metadata carries
// collected_messages and collected_count.
func mergeBufferedMessages(messages []InboundMessage) InboundMessage {
	first := messages[0]

	var content string
	if len(messages) == 1 {
		content = messages[0].Content
	} else {
		parts := make([]string, len(messages))
		for i, m := range messages {
			parts[i] = "[" + m.SenderID + "] " + m.Content
		}
		content = joinDoubleNewline(parts)
	}

	var media []string
	collected := make([]CollectedMessage, 0, len(messages))
	for _, m := range messages {
		media = append(media, m.Media...)
		ts := m.Metadata["timestamp"]
		collected = append(collected, CollectedMessage{
			SenderID:  m.SenderID,
			Content:   m.Content,
			Timestamp: ts,
			Media:     m.Media,
			Metadata:  m.Metadata,
		})
	}

	merged := InboundMessage{
		Channel:    first.Channel,
		SenderID:   first.SenderID,
		ChatID:     first.ChatID,
		Content:    content,
		Media:      media,
		SessionKey: first.SessionKey,
		PeerKind:   first.PeerKind,
		AgentID:    first.AgentID,
		UserID:     first.UserID,
	}
	merged.Metadata = make(map[string]string, len(first.Metadata)+2)
	for k, v := range first.Metadata {
		merged.Metadata[k] = v
	}
	if encoded, err := json.Marshal(collected); err == nil {
		merged.Metadata[metaKeyCollectedMessages] = string(encoded)
	}
	merged.Metadata[metaKeyCollectedCount] = itoa(len(messages))
	return merged
}

func joinDoubleNewline(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n\n" + p
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// PublishOutbound publishes a response from the agent to channel adapters.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.Lock()
	b.outbound = append(b.outbound, msg)
	b.mu.Unlock()
	notify(b.outboundCh)

	b.subsMu.RLock()
	subs := append([]func(OutboundMessage){}, b.subs[msg.Channel]...)
	b.subsMu.RUnlock()
	for _, cb := range subs {
		cb(msg)
	}
}

// RegisterOutboundHandler registers a direct callback for a channel's outbound
// messages, as an alternative to polling SubscribeOutbound.
func (b *MessageBus) RegisterOutboundHandler(channel string, cb func(OutboundMessage)) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs[channel] = append(b.subs[channel], cb)
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// done, returning it for polling-style consumers.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	for {
		b.mu.Lock()
		if len(b.outbound) > 0 {
			msg := b.outbound[0]
			b.outbound = b.outbound[1:]
			b.mu.Unlock()
			return msg, true
		}
		b.mu.Unlock()

		select {
		case <-b.outboundCh:
			continue
		case <-b.done:
			return OutboundMessage{}, false
		case <-ctx.Done():
			return OutboundMessage{}, false
		case <-time.After(time.Second):
			continue
		}
	}
}

// CreateWaiter creates a one-shot waiter for outbound delivery
// acknowledgement. If a waiter already exists for requestID, it is resolved
// with success=false ("superseded") before being replaced.
func (b *MessageBus) CreateWaiter(requestID string) *Waiter {
	w := &Waiter{ch: make(chan waiterResult, 1)}

	b.waitersMu.Lock()
	old := b.waiters[requestID]
	b.waiters[requestID] = w
	b.waitersMu.Unlock()

	if old != nil {
		old.resolve(false, "superseded by a newer outbound request")
	}
	return w
}

// ResolveWaiter resolves the waiter registered for requestID, if any.
func (b *MessageBus) ResolveWaiter(requestID string, success bool, errMsg string) {
	if requestID == "" {
		return
	}
	b.waitersMu.Lock()
	w := b.waiters[requestID]
	delete(b.waiters, requestID)
	b.waitersMu.Unlock()
	if w != nil {
		w.resolve(success, errMsg)
	}
}

// DiscardWaiter drops a waiter without resolving it.
func (b *MessageBus) DiscardWaiter(requestID string) {
	if requestID == "" {
		return
	}
	b.waitersMu.Lock()
	delete(b.waiters, requestID)
	b.waitersMu.Unlock()
}

// Stop shuts down the bus; blocked ConsumeInbound/SubscribeOutbound calls
// return (zero, false).
func (b *MessageBus) Stop() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// InboundSize returns the number of queued (unbuffered) inbound messages.
func (b *MessageBus) InboundSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inbound)
}

// OutboundSize returns the number of queued outbound messages.
func (b *MessageBus) OutboundSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outbound)
}
