// Package service implements the exam coordination commands and queries.
// Every command takes an authenticated actor, applies the domain's own
// role/room checks, and serializes against other writers on the same exam.
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/exam/projection"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// Stores bundles the persistence boundaries the service writes through.
type Stores struct {
	Exams      storage.ExamStore
	Attendance storage.AttendanceStore
	Transfers  storage.TransferStore
	Events     storage.EventStore
	Stats      storage.StatStore
	Messages   storage.MessageStore
}

// Service coordinates live exam state. Mutations on one exam are serialized
// through a per-exam mutex; reads go straight to storage and may observe
// either side of an in-flight mutation.
type Service struct {
	stores      Stores
	applier     projection.Applier
	realNow     func() time.Time
	idGenerator func() (string, error)

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Service with default clock and id dependencies.
func New(stores Stores) *Service {
	return &Service{
		stores:      stores,
		applier:     projection.Applier{Stats: stores.Stats},
		realNow:     time.Now,
		idGenerator: domain.NewID,
		locks:       map[string]*sync.Mutex{},
	}
}

// WithClock overrides the wall-clock source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.realNow = now
	return s
}

// WithIDGenerator overrides id generation, for tests.
func (s *Service) WithIDGenerator(generator func() (string, error)) *Service {
	s.idGenerator = generator
	return s
}

// appendEvent appends one fact to the ledger and folds it into the cached
// rollups. The append is the commit point; a rollup failure is logged and
// swallowed because the rollup can always be rebuilt from the ledger.
func (s *Service) appendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	appended, err := s.stores.Events.AppendEvent(ctx, evt)
	if err != nil {
		return event.Event{}, err
	}
	if err := s.applier.Apply(ctx, appended); err != nil {
		log.Printf("event=rollup_fold_failed exam_id=%s seq=%d type=%s error=%q",
			appended.ExamID, appended.Seq, appended.Type, err)
	}
	return appended, nil
}

// rebuildStats replays the ledger into a fresh set of rollups. Callers must
// hold the exam lock so the replay does not race an incremental fold.
func (s *Service) rebuildStats(ctx context.Context, examID string) (uint64, error) {
	return projection.RebuildStats(ctx, s.stores.Events, s.stores.Stats, examID)
}

// lockFor returns the mutex serializing writes to one exam. Different exams
// never share a lock.
func (s *Service) lockFor(examID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[examID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[examID] = lock
	}
	return lock
}
