package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/platform/websocket"
)

// EventSnapshot is the websocket event type carrying a Snapshot.
const EventSnapshot = "snapshot.updated"

// Store keeps the latest snapshot per dataset for the HTTP view and
// forwards each one to an optional event publisher.
type Store struct {
	mu        sync.RWMutex
	snaps     map[Kind]Snapshot
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewStore(publisher websocket.EventPublisher, logger zerolog.Logger) *Store {
	return &Store{
		snaps:     make(map[Kind]Snapshot),
		publisher: publisher,
		logger:    logger.With().Str("component", "store").Logger(),
	}
}

func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snaps[snap.Dataset] = snap
	s.mu.Unlock()

	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error().Err(err).Str("dataset", string(snap.Dataset)).Msg("failed to encode snapshot")
		return
	}
	ev := websocket.Event{
		Type:      EventSnapshot,
		Topic:     string(snap.Dataset),
		State:     string(snap.State),
		Timestamp: snap.UpdatedAt,
		Data:      data,
	}
	if err := s.publisher.Publish(context.Background(), ev); err != nil {
		s.logger.Warn().Err(err).Str("dataset", string(snap.Dataset)).Msg("failed to publish snapshot")
	}
}

func (s *Store) Get(kind Kind) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[kind]
	return snap, ok
}

// All returns the stored snapshots, constant first.
func (s *Store) All() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.snaps))
	for _, k := range []Kind{KindConstant, KindChanging} {
		if snap, ok := s.snaps[k]; ok {
			out = append(out, snap)
		}
	}
	return out
}
