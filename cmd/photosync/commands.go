package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/photosync/client/download"
	"github.com/adamwoolhether/photosync/imgsync"
)

func newSyncCmd(a *app) *cobra.Command {
	var allExternal bool

	cmd := &cobra.Command{
		Use:   "sync [user-principal-name...]",
		Short: "Set missing profile pictures from the directory photo",
		Long: `Sync processes each user in turn. Users that need no change, or cannot
be changed, are reported with their outcome. The run stops at the first
error such as an exhausted throttle budget or a rejected credential.

With --all-external the users are the directory's guest accounts instead
of the arguments.`,
		Args: func(_ *cobra.Command, args []string) error {
			switch {
			case allExternal && len(args) > 0:
				return errors.New("--all-external does not take user arguments")
			case !allExternal && len(args) == 0:
				return errors.New("requires at least 1 user principal name or --all-external")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			report := func(user string, outcome imgsync.Outcome) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", user, outcome)
			}

			if allExternal {
				if err := a.syncer.SyncExternalUsers(cmd.Context(), report); err != nil {
					a.logger.Error("sync failed", "error", err)
					return fmt.Errorf("%w: %w", errSyncFailed, err)
				}
				return nil
			}

			for _, user := range args {
				outcome, err := a.syncer.Sync(cmd.Context(), user)
				if err != nil {
					a.logger.Error("sync failed", "user", user, "error", err)
					return fmt.Errorf("%w for %s: %w", errSyncFailed, user, err)
				}
				report(user, outcome)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&allExternal, "all-external", false, "sync every guest account in the directory")

	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		out      string
		progress bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "export <user-principal-name>",
		Short: "Save a user's directory photo to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []download.Option
			if progress {
				opts = append(opts, download.WithProgress())
			}
			if !force {
				opts = append(opts, download.WithSkipExisting())
			}

			if err := a.syncer.ExportPhoto(cmd.Context(), args[0], out, opts...); err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)

			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file")
	cmd.Flags().BoolVar(&progress, "progress", false, "log download progress")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
