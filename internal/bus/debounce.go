package bus

import (
	"sync"
	"time"
)

// InboundDebouncer coalesces rapid-fire inbound messages from the same
// sender within a fixed window before handing them to flush, independent of
// the bus's in-flight-turn buffering (MessageBus.PublishInbound): this runs
// upstream of the bus, merging keystrokes-apart messages that would
// otherwise become separate turns entirely, not just separate buffered
// follow-ups within one turn.
type InboundDebouncer struct {
	window time.Duration
	flush  func(InboundMessage)

	mu      sync.Mutex
	pending map[string]*debounceEntry
	stopped bool
}

type debounceEntry struct {
	messages []InboundMessage
	timer    *time.Timer
}

func NewInboundDebouncer(window time.Duration, flush func(InboundMessage)) *InboundDebouncer {
	return &InboundDebouncer{
		window:  window,
		flush:   flush,
		pending: make(map[string]*debounceEntry),
	}
}

func debounceKey(msg InboundMessage) string {
	return inboundSessionKey(msg) + "|" + msg.SenderID
}

// Push queues msg, restarting the debounce window for its (session, sender)
// pair. If window is zero, msg flushes immediately.
func (d *InboundDebouncer) Push(msg InboundMessage) {
	if d.window <= 0 {
		d.flush(msg)
		return
	}

	key := debounceKey(msg)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.flush(msg)
		return
	}

	entry, ok := d.pending[key]
	if !ok {
		entry = &debounceEntry{}
		d.pending[key] = entry
	} else {
		entry.timer.Stop()
	}
	entry.messages = append(entry.messages, msg)

	entry.timer = time.AfterFunc(d.window, func() { d.flushKey(key) })
}

func (d *InboundDebouncer) flushKey(key string) {
	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	if len(entry.messages) == 1 {
		d.flush(entry.messages[0])
		return
	}
	d.flush(mergeBufferedMessages(entry.messages))
}

// Stop flushes any pending entries immediately and disables further
// debouncing (subsequent Push calls flush synchronously).
func (d *InboundDebouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	pending := d.pending
	d.pending = make(map[string]*debounceEntry)
	d.mu.Unlock()

	for _, entry := range pending {
		entry.timer.Stop()
		if len(entry.messages) == 1 {
			d.flush(entry.messages[0])
		} else {
			d.flush(mergeBufferedMessages(entry.messages))
		}
	}
}
