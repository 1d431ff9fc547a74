package main

import (
	"context"
	"fmt"
	"time"

	"lifestory/internal/models"
	"lifestory/internal/timeline"

	"github.com/spf13/cobra"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed item now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			id := args[0]
			item, ok := sess.store.GetItem(id)
			if !ok {
				return fmt.Errorf("%w: %s", timeline.ErrItemNotFound, id)
			}
			if item.Status != models.StatusError {
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s is %s; only failed items can be retried\n", id, item.Status)
				return nil
			}

			if err := sess.store.RetryItem(cmd.Context(), id); err != nil {
				sess.logger.Warn().Err(err).Str("item_id", id).Msg("retry not persisted")
			}

			waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			final, err := waitForItem(waitCtx, sess.store, id, uploadSettled)
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), []models.TimelineItem{final})
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait for the upload")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete items and any scheduled retries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			for _, id := range args {
				if _, ok := sess.store.GetItem(id); !ok {
					fmt.Fprintf(out, "Item %s not found\n", id)
					continue
				}
				if err := sess.store.DeleteItem(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Item %s deleted\n", id)
			}
			return nil
		},
	}
}
