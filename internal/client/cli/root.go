package cli

import (
	"github.com/dmitrijs2005/offsync/internal/client/config"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the offsync client command tree.
func NewRootCommand() *cobra.Command {
	var app *App

	cmd := &cobra.Command{
		Use:           "offsync",
		Short:         "offsync - offline-first table replication client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := initConfig(cfg); err != nil {
				return err
			}
			app, err = NewApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())

	current := func() *App { return app }
	cmd.AddCommand(
		newInsertCommand(current),
		newUpdateCommand(current),
		newDeleteCommand(current),
		newGetCommand(current),
		newListCommand(current),
		newStatusCommand(current),
		newResetCommand(current),
		newSyncCommand(current),
		newRunCommand(current),
	)
	return cmd
}
