package main

import (
	"fmt"
	"time"

	"lifestory/internal/export"
	"lifestory/internal/models"

	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export book entries to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if dir == "" {
				dir = sess.cfg.Exports.Path
			}
			exporter := export.NewBookExporter(dir, sess.logger)
			path, err := exporter.Export(sess.store.GetItems(models.ItemFilter{}), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (defaults to exports.path)")
	return cmd
}
