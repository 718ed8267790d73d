package telegraph

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zulandar/council/internal/config"
	"github.com/zulandar/council/internal/council"
	"go.uber.org/zap"
)

// Daemon is the main telegraph process. It connects to a chat platform via
// an Adapter, pumps inbound messages to the router, and sweeps idle
// sessions on a cron schedule.
type Daemon struct {
	cfg      config.TelegraphConfig
	adapter  Adapter
	registry *council.Registry
	recorder Recorder
	logger   *zap.Logger
	out      io.Writer
	now      func() time.Time
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config   config.TelegraphConfig
	Adapter  Adapter
	Registry *council.Registry
	Recorder Recorder  // optional; archives every chat session
	Logger   *zap.Logger
	Out      io.Writer // defaults to os.Stdout
	// For testing: override the clock used for sweep scheduling.
	Now func() time.Time
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("telegraph: registry is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Daemon{
		cfg:      opts.Config,
		adapter:  opts.Adapter,
		registry: opts.Registry,
		recorder: opts.Recorder,
		logger:   logger,
		out:      out,
		now:      now,
	}, nil
}

// Run starts the telegraph daemon. It connects the adapter, builds the
// session manager, command handler and router, and blocks until the context
// is cancelled or the adapter closes its inbound channel. Messages are
// handled concurrently; Run waits for in-flight messages before returning.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	sessions, err := NewSessionManager(SessionManagerOpts{
		Registry: d.registry,
		Adapter:  d.adapter,
		Recorder: d.recorder,
		Surface:  d.cfg.Platform,
		Logger:   d.logger,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build session manager: %w", err)
	}
	defer sessions.Close()

	commands, err := NewCommandHandler(CommandHandlerOpts{Sessions: sessions})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build command handler: %w", err)
	}

	router, err := NewRouter(RouterOpts{
		Sessions:  sessions,
		Commands:  commands,
		Adapter:   d.adapter,
		BotUserID: botUserID,
		Logger:    d.logger,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runSweepScheduler(sweepCtx, sessions)
	}()

	fmt.Fprintf(d.out, "Telegraph online\n")
	d.logger.Info("telegraph online", zap.String("platform", d.cfg.Platform), zap.String("bot", botUserID))

	if d.cfg.Channel != "" {
		if err := d.adapter.Send(ctx, OutboundMessage{
			ChannelID: d.cfg.Channel,
			Text:      "The Inner Council is in session. Mention me with what is troubling you.",
		}); err != nil {
			d.logger.Warn("send online message", zap.Error(err))
		}
	}

	// Main event loop: pump inbound messages until context is cancelled.
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			d.sendShutdown()
			if err := d.adapter.Close(); err != nil {
				d.logger.Warn("close adapter", zap.Error(err))
			}
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				// Adapter closed the channel.
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.Handle(ctx, msg)
			}()
		}
	}
}

// runSweepScheduler drops idle sessions each time the sweep cron fires. It
// returns immediately if the schedule or the idle timeout is not set.
func (d *Daemon) runSweepScheduler(ctx context.Context, sessions *SessionManager) {
	idle := time.Duration(d.cfg.IdleTimeoutMin) * time.Minute
	if idle <= 0 || d.cfg.SweepCron == "" {
		return
	}
	wait := nextCronDuration(d.cfg.SweepCron, d.now())
	if wait <= 0 {
		d.logger.Warn("invalid sweep schedule", zap.String("cron", d.cfg.SweepCron))
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if removed := sessions.Sweep(idle); len(removed) > 0 {
				d.logger.Info("swept idle sessions", zap.Int("count", len(removed)))
			}
			timer.Reset(nextCronDuration(d.cfg.SweepCron, d.now()))
		}
	}
}

// sendShutdown posts a shutdown message to the adapter (best-effort).
func (d *Daemon) sendShutdown() {
	if d.cfg.Channel == "" {
		return
	}
	if err := d.adapter.Send(context.Background(), OutboundMessage{
		ChannelID: d.cfg.Channel,
		Text:      "The Inner Council is adjourned.",
	}); err != nil {
		d.logger.Warn("send shutdown message", zap.Error(err))
	}
}
