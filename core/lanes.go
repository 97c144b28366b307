package orchestration

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/koscakluka/ema-screening/core/sessions"
)

const laneBuffer = 16

// lane serializes the turns of one session. Work queued on a lane runs in
// submission order on a single goroutine.
type lane struct {
	sessionID string
	items     chan func(context.Context)
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// mu guards lastTextSeq and epoch, audio is only delivered while both
	// still allow it.
	mu          sync.Mutex
	lastTextSeq int
	epoch       int

	avatarMu sync.Mutex
}

// lane returns the lane of sessionID, starting it when needed. Lanes are only
// started for sessions the store holds. EndSession removes the session
// before stopping the lane, so the check has to run under lanesMu.
func (o *Orchestrator) lane(sessionID string) (*lane, error) {
	o.lanesMu.Lock()
	defer o.lanesMu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if l, ok := o.lanes[sessionID]; ok {
		return l, nil
	}
	if _, err := o.store.Get(sessionID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(o.ctx)
	l := &lane{
		sessionID: sessionID,
		items:     make(chan func(context.Context), laneBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	o.lanes[sessionID] = l
	go o.runLane(l)
	return l, nil
}

func (o *Orchestrator) stopLane(sessionID string) {
	o.lanesMu.Lock()
	l := o.lanes[sessionID]
	delete(o.lanes, sessionID)
	o.lanesMu.Unlock()

	if l != nil {
		l.stop()
	}
}

func (o *Orchestrator) runLane(l *lane) {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case item := <-l.items:
			o.runLaneItem(l, item)
		}
	}
}

func (o *Orchestrator) runLaneItem(l *lane, item func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(l.ctx, "session lane recovered from panic",
				"session_id", l.sessionID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	item(l.ctx)
}

func (l *lane) enqueue(ctx context.Context, item func(context.Context)) error {
	if l.ctx.Err() != nil {
		return fmt.Errorf("session %q: %w", l.sessionID, sessions.ErrSessionNotFound)
	}

	select {
	case l.items <- item:
		return nil
	case <-l.ctx.Done():
		return fmt.Errorf("session %q: %w", l.sessionID, sessions.ErrSessionNotFound)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane) stop() {
	l.invalidateAudio()
	l.cancel()
}

// invalidateAudio makes every synthesis started so far undeliverable.
func (l *lane) invalidateAudio() {
	l.mu.Lock()
	l.epoch++
	l.mu.Unlock()
}

func (l *lane) audioEpoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}
