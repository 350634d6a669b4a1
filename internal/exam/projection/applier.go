package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// Applier folds ledger events into the derived per-student rollups. The same
// fold runs incrementally after each append and in bulk during replay, so the
// cached rollups can never drift from what a ledger replay would produce.
type Applier struct {
	Stats storage.StatStore
}

// Apply folds one event into the affected student's rollup. Events already
// covered by the rollup's LastSeq are skipped, so replays are idempotent.
func (a Applier) Apply(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeBreakEnded:
		return a.applyBreakEnded(ctx, evt)
	case event.TypeBreakOverrun, event.TypeIncidentReported:
		return a.applyIncident(ctx, evt)
	case event.TypeViolationRecorded:
		return a.applyViolation(ctx, evt)
	default:
		return nil
	}
}

func (a Applier) applyBreakEnded(ctx context.Context, evt event.Event) error {
	var payload event.BreakEndedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode break.ended payload: %w", err)
	}

	return a.fold(ctx, evt, func(stat *storage.StudentStat) {
		stat.BreakCount++
		stat.BreakTotalMillis += payload.DurationMillis
	})
}

func (a Applier) applyIncident(ctx context.Context, evt event.Event) error {
	return a.fold(ctx, evt, func(stat *storage.StudentStat) {
		stat.IncidentCount++
		if note := strings.TrimSpace(evt.Description); note != "" {
			stat.Notes = append(stat.Notes, note)
		}
	})
}

func (a Applier) applyViolation(ctx context.Context, evt event.Event) error {
	return a.fold(ctx, evt, func(stat *storage.StudentStat) {
		stat.IncidentCount++
		stat.ViolationCount++
		if note := strings.TrimSpace(evt.Description); note != "" {
			stat.Notes = append(stat.Notes, note)
		}
	})
}

func (a Applier) fold(ctx context.Context, evt event.Event, mutate func(*storage.StudentStat)) error {
	if a.Stats == nil {
		return fmt.Errorf("stat store is not configured")
	}
	if strings.TrimSpace(evt.ExamID) == "" {
		return fmt.Errorf("exam id is required")
	}
	if strings.TrimSpace(evt.StudentID) == "" {
		return nil
	}

	stat, err := a.Stats.GetStat(ctx, evt.ExamID, evt.StudentID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		stat = storage.StudentStat{ExamID: evt.ExamID, StudentID: evt.StudentID}
	}
	if evt.Seq != 0 && evt.Seq <= stat.LastSeq {
		return nil
	}

	mutate(&stat)
	stat.LastSeq = evt.Seq
	stat.UpdatedAt = ensureTimestamp(evt.Timestamp)

	return a.Stats.PutStat(ctx, stat)
}

func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
