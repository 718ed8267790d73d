package telegraph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zulandar/council/internal/council"
	"go.uber.org/zap"
)

// Recorder attaches a persistent transcript recorder to a controller.
// *archive.Archive satisfies it.
type Recorder interface {
	Attach(ctrl *council.Controller, surface, key string) (func(), error)
}

// SessionManager maps chat threads to council sessions. It submits user
// text, runs the automatic council and verdict stages, and relays every new
// transcript message back to the thread.
type SessionManager struct {
	registry *council.Registry
	adapter  Adapter
	recorder Recorder
	surface  string
	logger   *zap.Logger

	mu      sync.Mutex
	threads map[string]*thread // key: "channelID:threadID"

	ackMu   sync.Mutex
	ackDeck []string // shuffled phrases, popped from end
}

// thread tracks relay progress for one session. Its lock serialises the
// messages of one chat thread.
type thread struct {
	mu     sync.Mutex
	sent   int // transcript messages already relayed
	detach func()
}

// SessionManagerOpts holds parameters for creating a SessionManager.
type SessionManagerOpts struct {
	Registry *council.Registry
	Adapter  Adapter
	Recorder Recorder // optional; archives every session
	Surface  string   // archive surface name, defaults to "chat"
	Logger   *zap.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(opts SessionManagerOpts) (*SessionManager, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("telegraph: session manager: registry is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: session manager: adapter is required")
	}
	surface := opts.Surface
	if surface == "" {
		surface = "chat"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		registry: opts.Registry,
		adapter:  opts.Adapter,
		recorder: opts.Recorder,
		surface:  surface,
		logger:   logger,
		threads:  make(map[string]*thread),
	}, nil
}

// sessionKey builds the registry key for a session.
func sessionKey(channelID, threadID string) string {
	return channelID + ":" + threadID
}

// HasSession returns true if there is a live session for the thread/channel.
func (sm *SessionManager) HasSession(channelID, threadID string) bool {
	return sm.registry.Has(sessionKey(channelID, threadID))
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	return sm.registry.Len()
}

// Route submits text to the session for the thread, creating the session on
// first use. When the investigation concludes it announces the council,
// runs the deliberation and verdict, and relays everything new.
func (sm *SessionManager) Route(ctx context.Context, channelID, threadID, text string) error {
	key := sessionKey(channelID, threadID)
	ctrl, created, err := sm.registry.GetOrCreate(key)
	if err != nil {
		return fmt.Errorf("telegraph: open session %s: %w", key, err)
	}
	th := sm.threadFor(key, ctrl, created)

	th.mu.Lock()
	defer th.mu.Unlock()

	err = ctrl.Submit(ctx, text)
	switch {
	case errors.Is(err, council.ErrEmptyInput):
		return nil
	case errors.Is(err, council.ErrBusy):
		// An earlier deliberation was interrupted; finish it below.
		sm.logger.Info("resuming interrupted deliberation", zap.String("key", key))
	case err != nil:
		return fmt.Errorf("telegraph: submit to %s: %w", key, err)
	}

	if ctrl.Stage() == council.StageCouncil {
		sm.relay(ctx, channelID, threadID, ctrl, th)
		sm.notice(ctx, channelID, threadID, sm.nextAck())
	}
	driveErr := ctrl.Drive(ctx)
	sm.relay(ctx, channelID, threadID, ctrl, th)
	if driveErr != nil {
		return fmt.Errorf("telegraph: deliberate %s: %w", key, driveErr)
	}
	return nil
}

// Reset clears the session for the thread. It reports false when the
// thread has no session.
func (sm *SessionManager) Reset(channelID, threadID string) bool {
	key := sessionKey(channelID, threadID)
	ctrl, ok := sm.registry.Get(key)
	if !ok {
		return false
	}
	th := sm.threadFor(key, ctrl, false)
	th.mu.Lock()
	defer th.mu.Unlock()
	ctrl.Reset()
	th.sent = 0
	return true
}

// SetProfile changes the subject profile for the thread's session,
// creating the session if needed so the profile applies from the start.
func (sm *SessionManager) SetProfile(channelID, threadID, profile string) error {
	key := sessionKey(channelID, threadID)
	ctrl, created, err := sm.registry.GetOrCreate(key)
	if err != nil {
		return fmt.Errorf("telegraph: open session %s: %w", key, err)
	}
	sm.threadFor(key, ctrl, created)
	return ctrl.SetProfile(profile)
}

// Snapshot returns the state of the thread's session.
func (sm *SessionManager) Snapshot(channelID, threadID string) (council.Snapshot, bool) {
	ctrl, ok := sm.registry.Get(sessionKey(channelID, threadID))
	if !ok {
		return council.Snapshot{}, false
	}
	return ctrl.Snapshot(), true
}

// Sweep drops sessions idle for longer than idle and returns their keys.
func (sm *SessionManager) Sweep(idle time.Duration) []string {
	removed := sm.registry.Sweep(idle)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, key := range removed {
		if th, ok := sm.threads[key]; ok {
			th.stopRecording()
			delete(sm.threads, key)
		}
	}
	return removed
}

// Close stops recording every session.
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for key, th := range sm.threads {
		th.stopRecording()
		delete(sm.threads, key)
	}
}

// threadFor returns the relay state for key. A freshly created session
// replaces any state left over from a swept one.
func (sm *SessionManager) threadFor(key string, ctrl *council.Controller, created bool) *thread {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	th, ok := sm.threads[key]
	if ok && !created {
		return th
	}
	if ok {
		th.stopRecording()
	}
	th = &thread{}
	if sm.recorder != nil {
		detach, err := sm.recorder.Attach(ctrl, sm.surface, key)
		if err != nil {
			sm.logger.Warn("archive attach failed", zap.String("key", key), zap.Error(err))
		} else {
			th.detach = detach
		}
	}
	sm.threads[key] = th
	return th
}

func (th *thread) stopRecording() {
	if th.detach != nil {
		th.detach()
		th.detach = nil
	}
}

// relay sends every transcript message not yet relayed, skipping the
// user's own messages. Called with th.mu held.
func (sm *SessionManager) relay(ctx context.Context, channelID, threadID string, ctrl *council.Controller, th *thread) {
	snap := ctrl.Snapshot()
	if th.sent > len(snap.Transcript) {
		th.sent = 0
	}
	for _, m := range snap.Transcript[th.sent:] {
		if m.Role == council.RoleUser {
			continue
		}
		for _, out := range FormatMessage(m) {
			out.ChannelID = channelID
			out.ThreadID = threadID
			if err := sm.adapter.Send(ctx, out); err != nil {
				sm.logger.Warn("relay send failed",
					zap.String("channel", channelID), zap.String("thread", threadID), zap.Error(err))
			}
		}
	}
	th.sent = len(snap.Transcript)
}

// notice sends a plain status line to the thread.
func (sm *SessionManager) notice(ctx context.Context, channelID, threadID, text string) {
	if err := sm.adapter.Send(ctx, OutboundMessage{
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      text,
	}); err != nil {
		sm.logger.Warn("notice send failed", zap.String("channel", channelID), zap.Error(err))
	}
}

// convenePhrases announce that the council has started deliberating.
var convenePhrases = []string{
	"The council takes its seats...",
	"Four voices gather around the table.",
	"The Ferryman lights the lantern. The council convenes.",
	"Swords, cups, pentacles and wands are laid out.",
	"Silence in the hall. The council is deliberating.",
	"The wheel begins to turn...",
}

// nextAck returns the next convene phrase from the shuffled deck. When the
// deck is exhausted it reshuffles, so every phrase is used before repeats.
func (sm *SessionManager) nextAck() string {
	sm.ackMu.Lock()
	defer sm.ackMu.Unlock()

	if len(sm.ackDeck) == 0 {
		sm.ackDeck = make([]string, len(convenePhrases))
		copy(sm.ackDeck, convenePhrases)
		rand.Shuffle(len(sm.ackDeck), func(i, j int) {
			sm.ackDeck[i], sm.ackDeck[j] = sm.ackDeck[j], sm.ackDeck[i]
		})
	}

	phrase := sm.ackDeck[len(sm.ackDeck)-1]
	sm.ackDeck = sm.ackDeck[:len(sm.ackDeck)-1]
	return phrase
}
