package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local store's sync bookkeeping for every configured shadow",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	ctx := context.Background()

	store, err := openStore(ctx, cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListSyncedShadows(ctx)
	if err != nil {
		return fmt.Errorf("listing synced shadows: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No shadows are being synced.")
		return nil
	}

	for _, key := range keys {
		info, err := store.GetSyncInfo(ctx, key)
		if err != nil {
			return fmt.Errorf("reading sync info for %s: %w", key, err)
		}

		if info == nil {
			fmt.Printf("%-30s (no sync information yet)\n", key.String())
			continue
		}

		fmt.Printf("%-30s cloud_version=%-6d local_version=%-6d cloud_deleted=%-5t last_sync_time=%d\n",
			key.String(), info.CloudVersion, info.LocalVersion, info.CloudDeleted, info.LastSyncTime)
	}

	return nil
}
