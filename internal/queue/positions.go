package queue

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/models"
	"walkin-queue-coordinator/internal/realtime"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/metrics"
)

// waitPerPositionMinutes is the flat estimate per queue slot.
const waitPerPositionMinutes = 30

// PositionEngine renumbers a venue's queue. Entries are ordered by creation
// time; in-progress entries get position 0 and drop out of the numbering.
// Recomputes for the same venue serialize on a per-venue mutex.
type PositionEngine struct {
	repo  domain.QueueRepository
	bus   *realtime.Bus
	clock clockwork.Clock
	log   *logging.Logger

	mu     sync.Mutex
	venues map[string]*sync.Mutex

	mRecomputes *metrics.Counter
}

func NewPositionEngine(repo domain.QueueRepository, bus *realtime.Bus, clock clockwork.Clock, log *logging.Logger) *PositionEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PositionEngine{
		repo:        repo,
		bus:         bus,
		clock:       clock,
		log:         log.WithComponent("positions"),
		venues:      map[string]*sync.Mutex{},
		mRecomputes: metrics.Default.Counter("position_recomputes_total", "Venue position recomputations"),
	}
}

func (p *PositionEngine) venueLock(venueID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.venues[venueID]
	if !ok {
		m = &sync.Mutex{}
		p.venues[venueID] = m
	}
	return m
}

// positionRow is the per-entry shape broadcast in queue_position_update.
type positionRow struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"userId"`
	Position             int           `json:"position"`
	Status               models.Status `json:"status"`
	EstimatedWaitMinutes int           `json:"estimatedWaitMinutes"`
}

// Recompute renumbers the venue's active entries, persists the new
// positions and broadcasts them to every affected connected customer.
func (p *PositionEngine) Recompute(ctx context.Context, venueID string) ([]models.QueueEntry, error) {
	lock := p.venueLock(venueID)
	lock.Lock()
	defer lock.Unlock()
	p.mRecomputes.Inc(1)

	entries, err := p.repo.GetActiveEntriesByVenueCtx(ctx, venueID)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(entries))
	waits := make(map[string]int, len(entries))
	next := 1
	for i := range entries {
		e := &entries[i]
		if e.Status == models.StatusInProgress {
			e.Position = 0
			e.EstimatedWaitMinutes = 0
		} else {
			e.Position = next
			e.EstimatedWaitMinutes = (next - 1) * waitPerPositionMinutes
			next++
		}
		positions[e.ID] = e.Position
		waits[e.ID] = e.EstimatedWaitMinutes
	}

	if err := p.repo.UpdatePositionsCtx(ctx, venueID, positions, waits); err != nil {
		return nil, err
	}
	p.broadcast(venueID, entries)
	return entries, nil
}

func (p *PositionEngine) broadcast(venueID string, entries []models.QueueEntry) {
	if p.bus == nil {
		return
	}
	rows := make([]positionRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, positionRow{
			ID: e.ID, UserID: e.UserID, Position: e.Position,
			Status: e.Status, EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		})
	}
	frame := realtime.NewFrame(realtime.FramePositionUpdate, p.clock.Now(), map[string]any{
		"venueId": venueID,
		"queues":  rows,
	})
	for _, e := range entries {
		p.bus.Send(e.UserID, frame)
	}
}
