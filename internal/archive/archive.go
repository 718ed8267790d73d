// Package archive persists council transcripts to a relational database.
//
// An Archive subscribes to controller events and mirrors every transcript
// message, stage change and reset into ArchivedSession and ArchivedMessage
// rows. Archiving is best effort: write failures are logged and never block
// or fail the session itself.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/council/internal/council"
	"github.com/zulandar/council/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when an archived session does not exist.
var ErrNotFound = errors.New("archive: session not found")

// Archive writes council sessions to the database.
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// Opts holds parameters for creating an Archive.
type Opts struct {
	DB     *gorm.DB
	Logger *zap.Logger
	// For testing: override the clock.
	Now func() time.Time
}

// New creates an Archive over an already migrated database.
func New(opts Opts) (*Archive, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("archive: db is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Archive{db: opts.DB, logger: logger, now: now}, nil
}

// Attach starts recording ctrl under the given surface and key. Messages
// already in the transcript are written first. Attach before the controller
// is shared with other goroutines. The returned function stops recording
// and closes the current archived session.
func (a *Archive) Attach(ctrl *council.Controller, surface, key string) (func(), error) {
	snap := ctrl.Snapshot()
	rec := &recorder{archive: a, surface: surface, key: key}
	if err := rec.open(snap.Profile, snap.Stage, snap.Summary); err != nil {
		return nil, err
	}
	for i, m := range snap.Transcript {
		rec.writeMessage(i+1, m)
	}
	unsubscribe := ctrl.Subscribe(rec.observe)
	return func() {
		unsubscribe()
		rec.close()
	}, nil
}

// ListOpts filters List.
type ListOpts struct {
	Surface string
	Limit   int
}

// SessionRow is one line of an archive listing.
type SessionRow struct {
	models.ArchivedSession
	MessageCount int `json:"message_count"`
}

// List returns archived sessions, newest first.
func (a *Archive) List(ctx context.Context, opts ListOpts) ([]SessionRow, error) {
	q := a.db.WithContext(ctx).
		Model(&models.ArchivedSession{}).
		Select("archived_sessions.*, (SELECT COUNT(*) FROM archived_messages WHERE archived_messages.session_id = archived_sessions.id) AS message_count").
		Order("archived_sessions.id DESC")
	if opts.Surface != "" {
		q = q.Where("surface = ?", opts.Surface)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var rows []SessionRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return rows, nil
}

// Transcript returns one archived session with its messages in order.
func (a *Archive) Transcript(ctx context.Context, id uint) (*models.ArchivedSession, error) {
	var s models.ArchivedSession
	err := a.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: session %d: %w", id, err)
	}
	return &s, nil
}

// recorder mirrors one controller. Its observe method runs under the
// controller's lock, so calls never overlap.
type recorder struct {
	archive *Archive
	surface string
	key     string
	current uint
}

func (r *recorder) open(profile string, stage council.Stage, summary string) error {
	s := models.ArchivedSession{
		Surface: r.surface,
		Key:     r.key,
		Profile: profile,
		Stage:   stage.String(),
		Summary: summary,
	}
	if err := r.archive.db.Create(&s).Error; err != nil {
		return fmt.Errorf("archive: open session %s/%s: %w", r.surface, r.key, err)
	}
	r.current = s.ID
	return nil
}

func (r *recorder) close() {
	if r.current == 0 {
		return
	}
	err := r.archive.db.Model(&models.ArchivedSession{}).
		Where("id = ?", r.current).
		Update("closed_at", r.archive.now()).Error
	if err != nil {
		r.archive.logger.Warn("archive: close session failed", zap.Uint("session", r.current), zap.Error(err))
	}
	r.current = 0
}

func (r *recorder) writeMessage(seq int, m council.Message) {
	row := models.ArchivedMessage{
		SessionID: r.current,
		Sequence:  seq,
		Role:      string(m.Role),
		Content:   m.Content,
	}
	if err := r.archive.db.Create(&row).Error; err != nil {
		r.archive.logger.Warn("archive: write message failed",
			zap.Uint("session", r.current), zap.Int("sequence", seq), zap.Error(err))
	}
}

// observe mirrors one controller event. Messages and stage changes are
// dropped while no archived session is open, so a failed reopen never
// produces orphan rows.
func (r *recorder) observe(e council.Event) {
	if r.current == 0 && e.Kind != council.EventReset {
		r.archive.logger.Debug("archive: no open session, event dropped",
			zap.String("surface", r.surface), zap.String("key", r.key), zap.String("kind", string(e.Kind)))
		return
	}
	switch e.Kind {
	case council.EventMessage:
		r.writeMessage(e.Sequence, e.Message)
	case council.EventStage:
		err := r.archive.db.Model(&models.ArchivedSession{}).
			Where("id = ?", r.current).
			Updates(map[string]interface{}{
				"stage":   e.Stage.String(),
				"profile": e.Profile,
				"summary": e.Summary,
			}).Error
		if err != nil {
			r.archive.logger.Warn("archive: update stage failed", zap.Uint("session", r.current), zap.Error(err))
		}
	case council.EventReset:
		r.close()
		if err := r.open(e.Profile, council.StageInit, ""); err != nil {
			r.archive.logger.Warn("archive: reopen after reset failed", zap.Error(err))
		}
	}
}
