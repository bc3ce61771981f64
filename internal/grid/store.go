package grid

import (
	"log/slog"
	"sync"
	"time"
)

// TransitionListener receives status transitions detected while applying
// snapshots or readings. Calls are made outside the store's lock.
type TransitionListener interface {
	StatusTransition(node NodeView, from, to VoltageStatus, at time.Time)
}

// Store is the single mutable container for the live topology.
// The update reconciler is the only writer; all other components read
// through Snapshot, Node, or PhaseGroup, which copy under the lock.
type Store struct {
	mu         sync.RWMutex
	topo       *Topology
	index      map[string]*ProsumerNode
	generation uint64
	maxAge     time.Duration
	lastStatus map[string]VoltageStatus

	listener TransitionListener
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an empty Store. maxAge is the reading age beyond which a
// node's status degrades to unknown; zero disables staleness.
func NewStore(maxAge time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		index:      make(map[string]*ProsumerNode),
		lastStatus: make(map[string]VoltageStatus),
		maxAge:     maxAge,
		logger:     logger,
		now:        time.Now,
	}
}

// SetListener registers the transition listener. Must be called before the
// first write.
func (s *Store) SetListener(l TransitionListener) {
	s.listener = l
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Generation returns the monotonic counter identifying the authoritative
// snapshot. It is bumped on every ReplaceSnapshot.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SnapshotTime returns the server timestamp embedded in the current
// authoritative snapshot, or the zero time if none has arrived yet.
func (s *Store) SnapshotTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.topo == nil {
		return time.Time{}
	}
	return s.topo.FetchedAt
}

// ReplaceSnapshot installs a new authoritative topology wholesale,
// rebuilds the id index, and bumps the generation counter. Status
// transitions caused by the new data are reported to the listener.
func (s *Store) ReplaceSnapshot(t *Topology) {
	now := s.now()

	s.mu.Lock()
	s.topo = t
	s.index = make(map[string]*ProsumerNode, 8)
	for _, pg := range t.Phases {
		for _, n := range pg.Prosumers {
			s.index[n.ID] = n
		}
	}
	s.generation++

	transitions := s.collectTransitionsLocked(now)
	gen := s.generation
	s.mu.Unlock()

	s.logger.Debug("snapshot replaced", "generation", gen, "nodes", len(s.index))
	s.fire(transitions)
}

// ApplyReading updates a single node's electrical state by id.
// The update is dropped when the id is unknown (structural changes arrive
// only via snapshots) or when ts is older than the node's current
// LastUpdatedAt (last-write-wins by event timestamp, not arrival order).
// Returns true if the reading was applied.
func (s *Store) ApplyReading(id string, voltage float64, powerKw *float64, ts time.Time) bool {
	now := s.now()

	s.mu.Lock()
	node, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("reading for unknown prosumer dropped", "id", id)
		return false
	}
	if ts.Before(node.LastUpdatedAt) {
		s.mu.Unlock()
		s.logger.Debug("out-of-order reading dropped",
			"id", id, "ts", ts, "current", node.LastUpdatedAt)
		return false
	}

	v := voltage
	node.Voltage = &v
	if powerKw != nil {
		node.ActivePowerKw = *powerKw
	}
	node.LastUpdatedAt = ts

	transitions := s.collectTransitionsLocked(now)
	s.mu.Unlock()

	s.fire(transitions)
	return true
}

// Node returns a read-only view of one prosumer with derived status.
func (s *Store) Node(id string) (NodeView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.index[id]
	if !ok {
		return NodeView{}, false
	}
	return s.viewLocked(n, s.now()), true
}

// PhaseGroup returns a read-only view of one phase's chain.
func (s *Store) PhaseGroup(p Phase) (PhaseView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.topo == nil {
		return PhaseView{}, false
	}
	for _, pg := range s.topo.Phases {
		if pg.Phase == p {
			return s.phaseViewLocked(pg, s.now()), true
		}
	}
	return PhaseView{}, false
}

// Snapshot returns a deep-copied view of the whole topology. The copy is
// safe to hold across asynchronous boundaries; it never aliases store state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	snap := &Snapshot{
		Generation: s.generation,
		TakenAt:    now,
	}
	if s.topo == nil {
		return snap
	}

	snap.Transformer = s.topo.Transformer
	snap.Limits = s.topo.Limits
	snap.FetchedAt = s.topo.FetchedAt
	snap.Phases = make([]PhaseView, 0, len(s.topo.Phases))
	for _, pg := range s.topo.Phases {
		snap.Phases = append(snap.Phases, s.phaseViewLocked(pg, now))
	}
	return snap
}

// viewLocked builds a NodeView with status derived at read time.
// Caller must hold at least the read lock.
func (s *Store) viewLocked(n *ProsumerNode, now time.Time) NodeView {
	view := NodeView{ProsumerNode: *n}
	if n.Voltage != nil {
		v := *n.Voltage
		view.Voltage = &v
	}
	view.Status = Classify(n.Voltage, s.topo.Limits, now.Sub(n.LastUpdatedAt), s.maxAge)
	return view
}

func (s *Store) phaseViewLocked(pg *PhaseGroup, now time.Time) PhaseView {
	view := PhaseView{
		Phase:     pg.Phase,
		Prosumers: make([]NodeView, 0, len(pg.Prosumers)),
	}
	for _, n := range pg.Prosumers {
		view.Prosumers = append(view.Prosumers, s.viewLocked(n, now))
	}
	return view
}

// collectTransitionsLocked recomputes every node's status and returns the
// set of changes versus the last observed statuses. Caller holds the write
// lock; the returned transitions are fired after the lock is released.
func (s *Store) collectTransitionsLocked(now time.Time) []transition {
	if s.topo == nil {
		return nil
	}

	var out []transition
	seen := make(map[string]bool, len(s.index))
	for _, pg := range s.topo.Phases {
		for _, n := range pg.Prosumers {
			seen[n.ID] = true
			cur := Classify(n.Voltage, s.topo.Limits, now.Sub(n.LastUpdatedAt), s.maxAge)
			prev, known := s.lastStatus[n.ID]
			if !known {
				prev = StatusUnknown
			}
			if cur != prev {
				out = append(out, transition{
					node: s.viewLocked(n, now),
					from: prev,
					to:   cur,
					at:   now,
				})
				s.lastStatus[n.ID] = cur
			} else if !known {
				s.lastStatus[n.ID] = cur
			}
		}
	}

	// Drop tracking state for nodes removed by a snapshot.
	for id := range s.lastStatus {
		if !seen[id] {
			delete(s.lastStatus, id)
		}
	}
	return out
}

type transition struct {
	node NodeView
	from VoltageStatus
	to   VoltageStatus
	at   time.Time
}

func (s *Store) fire(transitions []transition) {
	if s.listener == nil {
		return
	}
	for _, tr := range transitions {
		s.listener.StatusTransition(tr.node, tr.from, tr.to, tr.at)
	}
}
