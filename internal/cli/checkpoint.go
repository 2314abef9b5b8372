package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/config"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/escrow"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/scheduler"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [pool]",
	Short: "Roll pool aggregates forward to now",
	Long:  "Advances the global decaying point of the named pool (or every configured pool) to the current time, consuming scheduled slope changes.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpoint,
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine := escrow.New(db, nil)

	if len(args) == 1 {
		poolID := args[0]
		if err := engine.Checkpoint(poolID); err != nil {
			return fmt.Errorf("checkpoint %s: %w", poolID, err)
		}
		point, err := engine.GlobalPoint(poolID)
		if err != nil {
			return err
		}
		fmt.Printf("%s: bias=%s slope=%s last_update=%d\n", poolID, point.Bias, point.Slope, point.LastUpdate)
		return nil
	}

	rolled := scheduler.New(db, engine).CheckpointAll()
	fmt.Printf("checkpointed %d pool(s)\n", rolled)
	return nil
}
