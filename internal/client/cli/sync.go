package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStatusCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cursors and pending changes per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app().engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout()).status(st)
		},
	}
}

func newResetCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [table...]",
		Short: "Forget download cursors so the next sync downloads those tables in full",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.engine.ResetCursors(cmd.Context(), args...); err != nil {
				return err
			}
			st, err := a.engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout()).status(st)
		},
	}
}

func newSyncCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one download and upload round against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := app().Syncer()
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := s.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout()).syncResult(res)
		},
	}
}

func newRunCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync every --interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := app().Syncer()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.Run(ctx)
		},
	}
}

