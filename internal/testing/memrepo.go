package testutil

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	errs "walkin-queue-coordinator/pkg/errors"
)

// MemRepo is an in-memory domain.Repository for unit tests. All maps are
// guarded by one mutex; tests are small enough that contention is moot.
type MemRepo struct {
	Mu sync.Mutex

	Entries       map[string]*models.QueueEntry
	Reputations   map[string]*models.UserReputation
	ApplyKeys     map[string]bool // userID + "\x00" + key
	CheckInLogs   []models.CheckInLog
	NotifLogs     []models.NotificationLog
	Venues        map[string]*models.Venue
	Users         map[string]*models.User
	Subscriptions map[string][]models.PushSubscription

	// FailNext makes the next repository call return a database error.
	FailNext bool

	seq int
}

var _ domain.Repository = (*MemRepo)(nil)

func NewMemRepo() *MemRepo {
	return &MemRepo{
		Entries:       map[string]*models.QueueEntry{},
		Reputations:   map[string]*models.UserReputation{},
		ApplyKeys:     map[string]bool{},
		Venues:        map[string]*models.Venue{},
		Users:         map[string]*models.User{},
		Subscriptions: map[string][]models.PushSubscription{},
	}
}

func (m *MemRepo) failNextLocked(op string) error {
	if m.FailNext {
		m.FailNext = false
		return errs.New(errs.CodeDatabaseError, op, "injected failure", nil)
	}
	return nil
}

func (m *MemRepo) NextID() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.seq++
	return "id-" + strconv.Itoa(m.seq)
}

func copyEntry(e *models.QueueEntry) *models.QueueEntry {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func (m *MemRepo) CreateQueueEntryCtx(_ context.Context, e *models.QueueEntry) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.CreateQueueEntry"); err != nil {
		return err
	}
	m.Entries[e.ID] = copyEntry(e)
	return nil
}

func (m *MemRepo) GetQueueEntryCtx(_ context.Context, id string) (*models.QueueEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetQueueEntry"); err != nil {
		return nil, err
	}
	e, ok := m.Entries[id]
	if !ok {
		return nil, errs.New(errs.CodeQueueNotFound, "memrepo.GetQueueEntry", "no entry "+id, nil)
	}
	return copyEntry(e), nil
}

func (m *MemRepo) GetActiveEntryCtx(_ context.Context, userID, venueID string) (*models.QueueEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetActiveEntry"); err != nil {
		return nil, err
	}
	for _, e := range m.Entries {
		if e.UserID == userID && e.VenueID == venueID && !e.Status.Terminal() {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (m *MemRepo) GetActiveEntriesByUserCtx(_ context.Context, userID string) ([]models.QueueEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetActiveEntriesByUser"); err != nil {
		return nil, err
	}
	var out []models.QueueEntry
	for _, e := range m.Entries {
		if e.UserID == userID && !e.Status.Terminal() {
			out = append(out, *e)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *MemRepo) GetActiveEntriesByVenueCtx(_ context.Context, venueID string) ([]models.QueueEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetActiveEntriesByVenue"); err != nil {
		return nil, err
	}
	var out []models.QueueEntry
	for _, e := range m.Entries {
		if e.VenueID == venueID && !e.Status.Terminal() {
			out = append(out, *e)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *MemRepo) GetStalledEntriesCtx(_ context.Context, status models.Status, cutoff time.Time) ([]models.QueueEntry, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetStalledEntries"); err != nil {
		return nil, err
	}
	var out []models.QueueEntry
	for _, e := range m.Entries {
		if e.Status != status {
			continue
		}
		var marker *time.Time
		switch status {
		case models.StatusNotified:
			marker = e.NotifiedAt
		case models.StatusPendingVerification:
			marker = e.CheckInAttemptedAt
		}
		if marker != nil && !marker.After(cutoff) {
			out = append(out, *e)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *MemRepo) UpdateQueueEntryStatusCtx(_ context.Context, e *models.QueueEntry, expected models.Status) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.UpdateQueueEntryStatus"); err != nil {
		return err
	}
	cur, ok := m.Entries[e.ID]
	if !ok {
		return errs.New(errs.CodeQueueNotFound, "memrepo.UpdateQueueEntryStatus", "no entry "+e.ID, nil)
	}
	if cur.Status != expected {
		return errs.New(errs.CodeInvalidStatusTransition, "memrepo.UpdateQueueEntryStatus",
			"status changed concurrently", nil).
			WithDetail("currentStatus", string(cur.Status))
	}
	m.Entries[e.ID] = copyEntry(e)
	return nil
}

func (m *MemRepo) UpdatePositionsCtx(_ context.Context, venueID string, positions map[string]int, waits map[string]int) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.UpdatePositions"); err != nil {
		return err
	}
	for id, pos := range positions {
		if e, ok := m.Entries[id]; ok && e.VenueID == venueID {
			e.Position = pos
			e.EstimatedWaitMinutes = waits[id]
		}
	}
	return nil
}

func (m *MemRepo) GetReputationCtx(_ context.Context, userID string) (*models.UserReputation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetReputation"); err != nil {
		return nil, err
	}
	r, ok := m.Reputations[userID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemRepo) UpsertReputationCtx(_ context.Context, r *models.UserReputation) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.UpsertReputation"); err != nil {
		return err
	}
	cp := *r
	m.Reputations[r.UserID] = &cp
	return nil
}

func (m *MemRepo) MarkReputationApplyCtx(_ context.Context, userID, key string) (bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.MarkReputationApply"); err != nil {
		return false, err
	}
	k := userID + "\x00" + key
	if m.ApplyKeys[k] {
		return false, nil
	}
	m.ApplyKeys[k] = true
	return true, nil
}

func (m *MemRepo) CreateCheckInLogCtx(_ context.Context, l *models.CheckInLog) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.CreateCheckInLog"); err != nil {
		return err
	}
	m.CheckInLogs = append(m.CheckInLogs, *l)
	return nil
}

func (m *MemRepo) GetRecentCheckInLogsCtx(_ context.Context, userID string, since time.Time, limit int) ([]models.CheckInLog, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetRecentCheckInLogs"); err != nil {
		return nil, err
	}
	var out []models.CheckInLog
	for i := len(m.CheckInLogs) - 1; i >= 0 && len(out) < limit; i-- {
		l := m.CheckInLogs[i]
		if l.UserID == userID && !l.Timestamp.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemRepo) GetCheckInHistoryCtx(_ context.Context, userID string, limit, offset int) ([]models.CheckInLog, int, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetCheckInHistory"); err != nil {
		return nil, 0, err
	}
	var all []models.CheckInLog
	for i := len(m.CheckInLogs) - 1; i >= 0; i-- {
		if m.CheckInLogs[i].UserID == userID {
			all = append(all, m.CheckInLogs[i])
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemRepo) GetLatestCheckInLogCtx(_ context.Context, queueID string) (*models.CheckInLog, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetLatestCheckInLog"); err != nil {
		return nil, err
	}
	for i := len(m.CheckInLogs) - 1; i >= 0; i-- {
		if m.CheckInLogs[i].QueueID == queueID {
			l := m.CheckInLogs[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemRepo) CreateNotificationLogCtx(_ context.Context, l *models.NotificationLog) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.CreateNotificationLog"); err != nil {
		return err
	}
	m.NotifLogs = append(m.NotifLogs, *l)
	return nil
}

func (m *MemRepo) GetNotificationLogsCtx(_ context.Context, queueID string) ([]models.NotificationLog, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetNotificationLogs"); err != nil {
		return nil, err
	}
	var out []models.NotificationLog
	for _, l := range m.NotifLogs {
		if l.QueueID == queueID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemRepo) GetVenueCtx(_ context.Context, id string) (*models.Venue, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetVenue"); err != nil {
		return nil, err
	}
	v, ok := m.Venues[id]
	if !ok {
		return nil, errs.New(errs.CodeVenueNotFound, "memrepo.GetVenue", "no venue "+id, nil)
	}
	cp := *v
	return &cp, nil
}

func (m *MemRepo) GetUserCtx(_ context.Context, id string) (*models.User, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetUser"); err != nil {
		return nil, err
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, errs.New(errs.CodeUserNotFound, "memrepo.GetUser", "no user "+id, nil)
	}
	cp := *u
	return &cp, nil
}

func (m *MemRepo) CreatePushSubscriptionCtx(_ context.Context, s *models.PushSubscription) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.CreatePushSubscription"); err != nil {
		return err
	}
	subs := m.Subscriptions[s.UserID]
	for _, existing := range subs {
		if existing.Endpoint == s.Endpoint {
			return nil
		}
	}
	m.Subscriptions[s.UserID] = append(subs, *s)
	return nil
}

func (m *MemRepo) GetPushSubscriptionsCtx(_ context.Context, userID string) ([]models.PushSubscription, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.GetPushSubscriptions"); err != nil {
		return nil, err
	}
	return append([]models.PushSubscription(nil), m.Subscriptions[userID]...), nil
}

func (m *MemRepo) DeletePushSubscriptionCtx(_ context.Context, userID, endpoint string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.failNextLocked("memrepo.DeletePushSubscription"); err != nil {
		return err
	}
	subs := m.Subscriptions[userID]
	out := subs[:0]
	for _, s := range subs {
		if s.Endpoint != endpoint {
			out = append(out, s)
		}
	}
	m.Subscriptions[userID] = out
	return nil
}

func sortByCreated(es []models.QueueEntry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].ID < es[j].ID
		}
		return es[i].CreatedAt.Before(es[j].CreatedAt)
	})
}

// MemUoW wraps a MemRepo as a UnitOfWork. Commit and Rollback are no-ops;
// writes apply immediately, which is fine for unit tests.
type MemUoW struct {
	*MemRepo
	Committed  bool
	RolledBack bool
}

func (u *MemUoW) Commit() error   { u.Committed = true; return nil }
func (u *MemUoW) Rollback() error { u.RolledBack = true; return nil }

// MemUoWFactory hands out MemUoW instances over one shared MemRepo.
type MemUoWFactory struct {
	Repo *MemRepo
	// BeginErr, when set, is returned by Begin.
	BeginErr error
}

func (f *MemUoWFactory) Begin(_ context.Context) (domain.UnitOfWork, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	return &MemUoW{MemRepo: f.Repo}, nil
}

var _ domain.UnitOfWorkFactory = (*MemUoWFactory)(nil)
