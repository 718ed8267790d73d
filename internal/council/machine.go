package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zulandar/council/internal/generate"
	"go.uber.org/zap"
)

// DefaultTemperature is the sampling temperature for every call except the
// verdict.
const DefaultTemperature = 0.7

var (
	// ErrEmptyInput is returned when the user submits blank text.
	ErrEmptyInput = errors.New("council: input is empty")
	// ErrBusy is returned when input arrives while the council or the
	// verdict is still pending.
	ErrBusy = errors.New("council: session is deliberating")
)

// EventKind classifies a controller event.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStage   EventKind = "stage"
	EventReset   EventKind = "reset"
)

// Event is delivered to observers after every transcript append, stage
// transition and reset. Stage and reset events also carry the profile and
// case summary in effect at that point.
type Event struct {
	Kind     EventKind `json:"kind"`
	Stage    Stage     `json:"stage"`
	Message  Message   `json:"message,omitempty"`
	Sequence int       `json:"sequence,omitempty"` // 1-based transcript position for messages
	Profile  string    `json:"profile,omitempty"`
	Summary  string    `json:"summary,omitempty"`
}

// Observer receives controller events. Observers run synchronously while
// the controller holds its lock and must not call back into it.
type Observer func(Event)

// Options configures a Controller. Zero values take the package defaults.
type Options struct {
	Generator          generate.Generator // nil behaves as an unconfigured service
	Profile            string
	MinRounds          int
	MaxRounds          int
	Completion         MatchMode
	Temperature        float64
	VerdictTemperature float64
	Logger             *zap.Logger
}

// Controller owns one Session and drives it through its stages. All methods
// are safe for concurrent use; steps of one session never interleave.
type Controller struct {
	mu        sync.Mutex
	session   *Session
	inv       *Investigator
	council   *Council
	synth     *Synthesizer
	followUp  *FollowUp
	logger    *zap.Logger
	observers map[int]Observer
	nextObs   int
}

// NewController creates a Controller with a fresh session in INIT.
func NewController(opts Options) (*Controller, error) {
	if opts.MinRounds == 0 {
		opts.MinRounds = DefaultMinRounds
	}
	if opts.MaxRounds == 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.MinRounds < 1 {
		return nil, fmt.Errorf("council: min rounds must be at least 1")
	}
	if opts.MaxRounds < opts.MinRounds {
		return nil, fmt.Errorf("council: max rounds %d is below min rounds %d", opts.MaxRounds, opts.MinRounds)
	}
	mode, err := ParseMatchMode(string(opts.Completion))
	if err != nil {
		return nil, err
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.VerdictTemperature == 0 {
		opts.VerdictTemperature = DefaultVerdictTemperature
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := asker{gen: opts.Generator, logger: logger}
	c := &Controller{
		session: NewSession(strings.TrimSpace(opts.Profile)),
		inv: &Investigator{
			asker:       a,
			detector:    CompletionDetector{Mode: mode},
			minRounds:   opts.MinRounds,
			maxRounds:   opts.MaxRounds,
			temperature: opts.Temperature,
			logger:      logger,
		},
		council:   &Council{asker: a, temperature: opts.Temperature, logger: logger},
		synth:     &Synthesizer{asker: a, temperature: opts.VerdictTemperature, logger: logger},
		followUp:  &FollowUp{asker: a, temperature: opts.Temperature},
		logger:    logger,
		observers: make(map[int]Observer),
	}
	c.session.emit = c.publish
	return c, nil
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Controller) Subscribe(obs Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(obs)
}

// SnapshotAndSubscribe returns the current state and registers obs in one
// step, so obs sees exactly the events that come after the snapshot.
func (c *Controller) SnapshotAndSubscribe(obs Observer) (Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), c.subscribeLocked(obs)
}

func (c *Controller) subscribeLocked(obs Observer) func() {
	id := c.nextObs
	c.nextObs++
	c.observers[id] = obs
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// publish fans an event out to observers. Called with c.mu held.
func (c *Controller) publish(e Event) {
	for _, obs := range c.observers {
		obs(e)
	}
}

// Submit performs one user-input step. Blank input is rejected with
// ErrEmptyInput and input during COUNCIL or VERDICT with ErrBusy; neither
// changes the session.
func (c *Controller) Submit(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	switch s.stage {
	case StageInit:
		if err := c.inv.Open(ctx, s, input); err != nil {
			return err
		}
		c.logger.Info("session opened", zap.String("profile", s.profile))
	case StageInvestigate:
		if _, err := c.inv.Answer(ctx, s, input); err != nil {
			return err
		}
	case StageFollowUp:
		c.followUp.Answer(ctx, s, input)
		return s.advance(StageFollowUp)
	default:
		return ErrBusy
	}
	return nil
}

// Advance performs one automatic step in COUNCIL or VERDICT. It returns
// false, without doing anything, when the session is waiting for input.
func (c *Controller) Advance(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	switch s.stage {
	case StageCouncil:
		done, err := c.council.Step(ctx, s)
		if err != nil {
			return false, err
		}
		if done {
			return true, s.advance(StageVerdict)
		}
		return true, nil
	case StageVerdict:
		if err := c.synth.Synthesize(ctx, s); err != nil {
			return false, err
		}
		return true, s.advance(StageFollowUp)
	default:
		return false, nil
	}
}

// Drive advances the session until it waits for user input again.
func (c *Controller) Drive(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stepped, err := c.Advance(ctx)
		if err != nil {
			return err
		}
		if !stepped {
			return nil
		}
	}
}

// Reset discards the session and starts over in INIT.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.reset()
	c.logger.Info("session reset")
}

// SetProfile changes the subject profile used by later prompts.
func (c *Controller) SetProfile(profile string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return fmt.Errorf("council: profile is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.profile = profile
	return nil
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.stage
}

// Profile returns the current subject profile.
func (c *Controller) Profile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.profile
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	Stage      Stage     `json:"stage"`
	Round      int       `json:"round"`
	Profile    string    `json:"profile"`
	Summary    string    `json:"summary,omitempty"`
	Opinions   []Opinion `json:"opinions"`
	Transcript []Message `json:"transcript"`
}

// Snapshot copies the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.session
	return Snapshot{
		Stage:      s.stage,
		Round:      s.round,
		Profile:    s.profile,
		Summary:    s.summary,
		Opinions:   s.Opinions(),
		Transcript: s.transcript.All(),
	}
}
