package cli

import (
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/spf13/cobra"
)

func newInsertCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> name=value...",
		Short: "Insert a record locally; it is uploaded on the next sync",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := models.AssignmentsFromStrings(args[1:])
			if err != nil {
				return err
			}
			a := app()
			rec, err := a.engine.Insert(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			return printRecord(cmd, a, args[0], rec)
		},
	}
}

func newUpdateCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <id> name=value...",
		Short: "Change columns of a local record",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := models.AssignmentsFromStrings(args[2:])
			if err != nil {
				return err
			}
			a := app()
			rec, err := a.engine.Update(cmd.Context(), args[0], args[1], values)
			if err != nil {
				return err
			}
			return printRecord(cmd, a, args[0], rec)
		},
	}
}

func newDeleteCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Soft-delete a local record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			rec, err := a.engine.Delete(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printRecord(cmd, a, args[0], rec)
		},
	}
}

func newGetCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Show one local record, deleted or not",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			rec, err := a.engine.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printRecord(cmd, a, args[0], rec)
		},
	}
}

func newListCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List the records of a table that are not deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			t, err := a.engine.Schema().Table(args[0])
			if err != nil {
				return err
			}
			recs, err := a.engine.Active(cmd.Context(), t.Name)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout()).records(t, recs)
		},
	}
}

func printRecord(cmd *cobra.Command, a *App, table string, rec *models.Record) error {
	t, err := a.engine.Schema().Table(table)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout()).records(t, []*models.Record{rec})
}
