package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"playlog/config"
	"playlog/models"
	"playlog/services/collection"
	"playlog/services/docstore"
)

const loadTimeout = 10 * time.Second

// cli carries flag values and the store opened for the running command.
type cli struct {
	configFile string
	backend    string
	dataDir    string
	sqlitePath string
	jsonOut    bool

	storage config.StorageSettings
	store   docstore.Store
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "shelfctl",
		Short:         "shelfctl manages playlog collections on disk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend: file or sqlite")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory holding users.json and file documents")
	root.PersistentFlags().StringVar(&c.sqlitePath, "sqlite-path", "", "SQLite database path")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "output as JSON")

	root.AddCommand(newListCmd(c))
	root.AddCommand(newExportCmd(c))
	root.AddCommand(newImportCmd(c))
	root.AddCommand(newUsersCmd(c))
	return root
}

func (c *cli) open() error {
	storage, err := loadConfig(c.configFile, map[string]string{
		cfgKeyBackend:    c.backend,
		cfgKeyDirectory:  c.dataDir,
		cfgKeySQLitePath: c.sqlitePath,
	})
	if err != nil {
		return err
	}
	store, err := docstore.Open(storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	c.storage = storage
	c.store = store
	return nil
}

func (c *cli) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// collection subscribes to one user's collection and waits for its first load.
func (c *cli) collection(ctx context.Context, userID, rawType string) (*collection.Adapter, collection.Snapshot, error) {
	collectionType, err := models.ParseCollectionType(rawType)
	if err != nil {
		return nil, collection.Snapshot{}, err
	}

	adapter := collection.NewAdapter(c.store, userID, collectionType)
	sub, err := adapter.Subscribe(ctx)
	if err != nil {
		return nil, collection.Snapshot{}, err
	}

	updates, stop := sub.Watch()
	defer stop()

	timer := time.NewTimer(loadTimeout)
	defer timer.Stop()
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return nil, collection.Snapshot{}, fmt.Errorf("subscription for %s/%s ended", userID, collectionType)
			}
			if snapshot.Err != nil {
				adapter.Close()
				return nil, collection.Snapshot{}, snapshot.Err
			}
			if !snapshot.Loading {
				return adapter, snapshot, nil
			}
		case <-timer.C:
			adapter.Close()
			return nil, collection.Snapshot{}, fmt.Errorf("timed out loading %s/%s", userID, collectionType)
		case <-ctx.Done():
			adapter.Close()
			return nil, collection.Snapshot{}, ctx.Err()
		}
	}
}
