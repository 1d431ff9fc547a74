package main

import (
	"fmt"

	"lifestory/internal/models"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var itemType, status string
	var inBook, jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List timeline items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.ItemFilter
			if itemType != "" {
				t := models.ItemType(itemType)
				if !t.Valid() {
					return fmt.Errorf("unknown item type %q", itemType)
				}
				filter.Type = &t
			}
			if status != "" {
				s := models.ItemStatus(status)
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = &s
			}
			if cmd.Flags().Changed("book") {
				filter.AddToBook = &inBook
			}

			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			items := sess.store.GetItems(filter)
			if jsonOut {
				return writeJSON(cmd, items)
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "", "Filter by type (text, voice, interview_answer)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, uploading, transcribing, done, error)")
	cmd.Flags().BoolVar(&inBook, "book", false, "Filter by book membership")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print items as JSON")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			stats := sess.store.GetStats()
			if jsonOut {
				return writeJSON(cmd, stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print stats as JSON")
	return cmd
}
