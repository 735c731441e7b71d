package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReminderRecord is the persisted shape of one durable reminder (§4.6).
// DueAt is absolute; Period is zero for Once reminders. InstanceID
// distinguishes successive registrations of a reminder with the same Name
// (e.g. after a cancel-then-reconfigure), so a host's own storage can tell
// a stale in-flight delivery from the current registration apart.
type ReminderRecord struct {
	InstanceID    string
	ActorID       string
	Name          string
	TargetTrigger string
	DueAt         time.Time
	Period        time.Duration
	Tick          int
}

// ReminderStore is the contract a host backs for durable reminders — the
// actor-framework side of registerReminder/unregisterReminder (§6), kept
// as an interface here because implementing the framework's own
// persistence/relocation machinery is explicitly out of scope (spec.md
// §1). MemoryReminderStore below is a working default for hosts that have
// none of their own, not a stand-in for the framework.
type ReminderStore interface {
	Save(ctx context.Context, rec ReminderRecord) error
	Delete(ctx context.Context, actorID, name string) error
	List(ctx context.Context, actorID string) ([]ReminderRecord, error)
}

// MemoryReminderStore is a process-local ReminderStore. It does not survive
// process restart, so it only satisfies the "survives deactivation" half
// of "durable" within one process's lifetime — adequate for single-process
// hosts and for tests.
type MemoryReminderStore struct {
	mu      sync.Mutex
	records map[string]map[string]ReminderRecord
}

func NewMemoryReminderStore() *MemoryReminderStore {
	return &MemoryReminderStore{records: make(map[string]map[string]ReminderRecord)}
}

func (s *MemoryReminderStore) Save(_ context.Context, rec ReminderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[rec.ActorID] == nil {
		s.records[rec.ActorID] = make(map[string]ReminderRecord)
	}
	s.records[rec.ActorID][rec.Name] = rec
	return nil
}

func (s *MemoryReminderStore) Delete(_ context.Context, actorID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[actorID], name)
	return nil
}

func (s *MemoryReminderStore) List(_ context.Context, actorID string) ([]ReminderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReminderRecord, 0, len(s.records[actorID]))
	for _, r := range s.records[actorID] {
		out = append(out, r)
	}
	return out, nil
}

// ReminderManager registers/cancels durable reminders against a
// ReminderStore. It does not fire reminders itself: a host polls Due and
// calls Rearm after each fire. grain.Coordinator.Activate calls Register
// again for the restored state's durable timeouts, which saves a fresh
// record due one Duration after activation.
type ReminderManager struct {
	store   ReminderStore
	actorID string
}

// NewReminderManager binds a ReminderManager to one actor's records.
func NewReminderManager(store ReminderStore, actorID string) *ReminderManager {
	return &ReminderManager{store: store, actorID: actorID}
}

// Register persists a durable reminder for cfg, due at now+cfg.Duration
// (and every cfg.Duration thereafter if Repeating).
func (m *ReminderManager) Register(ctx context.Context, cfg TimeoutConfig, now time.Time) error {
	period := time.Duration(0)
	if cfg.Repeat == Repeating {
		period = cfg.Duration
	}
	return m.store.Save(ctx, ReminderRecord{
		InstanceID:    uuid.NewString(),
		ActorID:       m.actorID,
		Name:          cfg.Name,
		TargetTrigger: fmt.Sprintf("%v", cfg.TargetTrigger),
		DueAt:         now.Add(cfg.Duration),
		Period:        period,
	})
}

// Cancel requests removal of a durable reminder. Per §4.6, durable
// cancellation is a request, not a synchronous confirmation — the host may
// complete it asynchronously; this call only removes our bookkeeping
// record.
func (m *ReminderManager) Cancel(ctx context.Context, name string) error {
	return m.store.Delete(ctx, m.actorID, name)
}

// Due returns the reminders whose DueAt has passed as of now, for a host's
// polling loop.
func (m *ReminderManager) Due(ctx context.Context, now time.Time) ([]ReminderRecord, error) {
	all, err := m.store.List(ctx, m.actorID)
	if err != nil {
		return nil, err
	}
	var due []ReminderRecord
	for _, r := range all {
		if !r.DueAt.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

// Rearm advances a fired repeating reminder's DueAt and tick, or deletes it
// if it was Once. Called once per fire, after the coordinator has
// processed the synthesized trigger.
func (m *ReminderManager) Rearm(ctx context.Context, rec ReminderRecord, firedAt time.Time) error {
	if rec.Period <= 0 {
		return m.store.Delete(ctx, m.actorID, rec.Name)
	}
	rec.Tick++
	rec.DueAt = firedAt.Add(rec.Period)
	return m.store.Save(ctx, rec)
}
