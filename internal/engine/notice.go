package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// NoticeKind identifies what happened.
type NoticeKind string

const (
	NoticeStarted   NoticeKind = "started"
	NoticeStopped   NoticeKind = "stopped"
	NoticePaused    NoticeKind = "paused"
	NoticeResumed   NoticeKind = "resumed"
	NoticeCleared   NoticeKind = "cleared"
	NoticeCompleted NoticeKind = "completed"

	NoticeLotAnnounced NoticeKind = "lot_announced"
	NoticeBidAccepted  NoticeKind = "bid_accepted"
	NoticeSold         NoticeKind = "sold"
	NoticeUnsold       NoticeKind = "unsold"
	NoticeSkipped      NoticeKind = "skipped"
	NoticeRolledBack   NoticeKind = "rolled_back"
	NoticeReleased     NoticeKind = "released"
	NoticePurseSet     NoticeKind = "purse_set"

	// NoticeSessionFailed means a settlement could not be persisted and
	// the session needs an admin stop.
	NoticeSessionFailed NoticeKind = "session_failed"
)

// Notice is one broadcast event for observers (gateway clients, logs).
// Fields are populated per kind; zero values mean not applicable.
type Notice struct {
	Kind     NoticeKind      `json:"kind"`
	At       time.Time       `json:"at"`
	Seq      int64           `json:"seq,omitempty"`
	Player   string          `json:"player,omitempty"`
	Team     string          `json:"team,omitempty"`
	Amount   int64           `json:"amount,omitempty"`
	Trigger  auction.Trigger `json:"trigger,omitempty"`
	Deadline time.Time       `json:"deadline,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// noticeHub fans notices out to subscribers.
//
// Delivery is best-effort: a subscriber whose buffer is full misses the
// notice rather than stalling the engine loop. Observers needing the
// full record read the ledgers instead.
type noticeHub struct {
	mu   sync.Mutex
	subs map[int]chan Notice
	next int
}

func newNoticeHub() *noticeHub {
	return &noticeHub{subs: make(map[int]chan Notice)}
}

// subscribe registers a new observer with the given buffer size.
// The returned cancel func is idempotent and closes the channel.
func (h *noticeHub) subscribe(buffer int) (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Notice, buffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (h *noticeHub) publish(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			slog.Warn("notice dropped for slow subscriber",
				"subscriber", id,
				"kind", n.Kind,
			)
		}
	}
}

func (h *noticeHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
