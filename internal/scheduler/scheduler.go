package scheduler

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/escrow"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

// Scheduler periodically checkpoints every configured pool so the cheap
// global power read stays close to the authoritatively rolled value. The
// rolling loop is bounded, so pools must be checkpointed well within its
// window; this is what does it.
type Scheduler struct {
	Cron   *cron.Cron
	DB     *store.DB
	Engine *escrow.Engine
}

// New creates a Scheduler.
func New(db *store.DB, engine *escrow.Engine) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(),
		DB:     db,
		Engine: engine,
	}
}

// Register installs the checkpoint job under the given cron spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.CheckpointAll() }); err != nil {
		return fmt.Errorf("register checkpoint task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] checkpoint scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] checkpoint scheduler stopped")
}

// CheckpointAll rolls every configured pool to now. Per-pool failures are
// logged and do not stop the sweep. Returns the number of pools rolled.
func (s *Scheduler) CheckpointAll() int {
	pools, err := s.DB.ListPoolIDs()
	if err != nil {
		log.Printf("[ERROR] list pools: %v", err)
		return 0
	}

	rolled := 0
	for _, poolID := range pools {
		if err := s.Engine.Checkpoint(poolID); err != nil {
			log.Printf("[ERROR] checkpoint %s: %v", poolID, err)
			continue
		}
		rolled++
	}
	if rolled > 0 {
		log.Printf("[INFO] checkpointed %d pool(s)", rolled)
	}
	return rolled
}
