package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shadowsync/internal/shadow"
	"github.com/tonimelisma/shadowsync/pkg/shadowkey"
)

func newShadowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Inspect or mutate local shadow documents",
	}

	cmd.AddCommand(newShadowGetCmd())
	cmd.AddCommand(newShadowSetCmd())
	cmd.AddCommand(newShadowDeleteCmd())

	return cmd
}

// shadowKeyFromArgs builds a shadow.Key from a "thing" positional argument
// and an optional second "name" argument.
func shadowKeyFromArgs(args []string) shadow.Key {
	key := shadow.Key{Thing: shadowkey.Normalize(args[0])}
	if len(args) > 1 {
		key.Name = shadowkey.Normalize(args[1])
	}

	return key
}

func newShadowGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <thing> [name]",
		Short: "Print the local shadow document for thing[:name]",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := context.Background()

			store, err := openStore(ctx, cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			key := shadowKeyFromArgs(args)

			doc, err := store.GetShadow(ctx, key)
			if err != nil {
				return fmt.Errorf("reading shadow %s: %w", key, err)
			}

			if doc == nil {
				return fmt.Errorf("shadow %s not found locally", key)
			}

			fmt.Printf("%s\n", doc.Body)

			return nil
		},
	}
}

func newShadowSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <thing> <document> [name]",
		Short: "Write a local shadow document",
		Long: `Set writes document as the local shadow body for thing[:name] and bumps
its local version, then signals a running daemon (via daemon.pid_file) to
reconcile: the daemon reloads its config and reseeds a full sync for every
synced key, which is what notices and pushes this write. This command never
pushes to the cloud directly.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := context.Background()

			store, err := openStore(ctx, cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			key := shadow.Key{Thing: shadowkey.Normalize(args[0])}
			if len(args) > 2 {
				key.Name = shadowkey.Normalize(args[2])
			}

			version, err := store.UpdateShadow(ctx, key, []byte(args[1]))
			if err != nil {
				return fmt.Errorf("writing shadow %s: %w", key, err)
			}

			statusf("Wrote %s at local version %d\n", key, version)

			if err := sendSIGHUP(cc.Cfg.Daemon.PIDFile); err != nil {
				statusf("Note: %v — change takes effect on next daemon start\n", err)
			} else {
				statusf("Notified running daemon to reload\n")
			}

			return nil
		},
	}
}

func newShadowDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thing> [name]",
		Short: "Delete a local shadow document",
		Long: `Delete removes the local shadow body for thing[:name] and bumps its
local version so the deletion is distinguishable from "never synced", then
signals a running daemon (via daemon.pid_file) to reconcile: the daemon
reloads its config and reseeds a full sync for every synced key, which is
what notices and pushes this deletion. This command never pushes to the
cloud directly.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := context.Background()

			store, err := openStore(ctx, cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			key := shadowKeyFromArgs(args)

			version, err := store.DeleteShadow(ctx, key)
			if err != nil {
				return fmt.Errorf("deleting shadow %s: %w", key, err)
			}

			statusf("Deleted %s, local version now %d\n", key, version)

			if err := sendSIGHUP(cc.Cfg.Daemon.PIDFile); err != nil {
				statusf("Note: %v — change takes effect on next daemon start\n", err)
			} else {
				statusf("Notified running daemon to reload\n")
			}

			return nil
		},
	}
}
