package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/storage"
)

const replayPageSize = 200

// ReplayOptions configures event replay behavior.
type ReplayOptions struct {
	AfterSeq uint64
	UntilSeq uint64
	Filter   func(event.Event) bool
}

// ReplayExam replays the full ledger for an exam and applies the rollup fold
// in sequence order.
func ReplayExam(ctx context.Context, eventStore storage.EventStore, applier Applier, examID string) (uint64, error) {
	return ReplayExamWith(ctx, eventStore, applier, examID, ReplayOptions{})
}

// RebuildStats discards the cached rollups for an exam and rebuilds them from
// the ledger. This is the recovery path when the incremental fold is
// suspected of drift.
func RebuildStats(ctx context.Context, eventStore storage.EventStore, statStore storage.StatStore, examID string) (uint64, error) {
	if statStore == nil {
		return 0, fmt.Errorf("stat store is not configured")
	}
	if err := statStore.ResetStats(ctx, examID); err != nil {
		return 0, fmt.Errorf("reset stats: %w", err)
	}
	return ReplayExam(ctx, eventStore, Applier{Stats: statStore}, examID)
}

// ReplayExamWith replays events with additional filtering and bounds.
func ReplayExamWith(ctx context.Context, eventStore storage.EventStore, applier Applier, examID string, options ReplayOptions) (uint64, error) {
	if eventStore == nil {
		return 0, fmt.Errorf("event store is not configured")
	}
	if strings.TrimSpace(examID) == "" {
		return 0, fmt.Errorf("exam id is required")
	}

	lastSeq := options.AfterSeq
	for {
		events, err := eventStore.ListEvents(ctx, examID, lastSeq, replayPageSize)
		if err != nil {
			return lastSeq, err
		}
		if len(events) == 0 {
			return lastSeq, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return lastSeq, nil
			}
			lastSeq = evt.Seq
			if options.Filter != nil && !options.Filter(evt) {
				continue
			}
			if err := applier.Apply(ctx, evt); err != nil {
				return lastSeq, err
			}
		}
	}
}
