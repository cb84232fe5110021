package cmd

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, err := openDB(ctx, true)
		if err != nil {
			return err
		}
		db.Close()
		return nil
	},
}
