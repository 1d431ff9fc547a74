package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lifestory/internal/models"

	"github.com/spf13/cobra"
)

type addOptions struct {
	title   string
	book    bool
	wait    bool
	timeout time.Duration
	json    bool
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the timeline",
	}
	cmd.PersistentFlags().StringVar(&opts.title, "title", "", "Item title")
	cmd.PersistentFlags().BoolVar(&opts.book, "book", false, "Include the item in the book")
	cmd.PersistentFlags().BoolVar(&opts.wait, "wait", false, "Wait until the item is done or has failed for good")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Maximum time to wait for the upload")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print the item as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "text <content>",
		Short: "Add a written memo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := models.TextPayload{
				Content:   strings.Join(args, " "),
				Title:     opts.title,
				AddToBook: opts.book,
			}
			return runAdd(cmd, ctx, payload, opts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "voice <audio-file>",
		Short: "Add a recorded voice memo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := models.VoicePayload{
				AudioPath: args[0],
				Title:     opts.title,
				AddToBook: opts.book,
			}
			return runAdd(cmd, ctx, payload, opts)
		},
	})

	var answer models.InterviewAnswerPayload
	answerCmd := &cobra.Command{
		Use:   "answer",
		Short: "Add an interview answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := answer
			payload.AddToBook = opts.book
			return runAdd(cmd, ctx, payload, opts)
		},
	}
	answerCmd.Flags().StringVar(&answer.SessionID, "session", "", "Interview session id")
	answerCmd.Flags().StringVar(&answer.QuestionID, "question", "", "Question id")
	answerCmd.Flags().StringVar(&answer.Content, "content", "", "Answer text")
	answerCmd.Flags().StringVar(&answer.AnswerType, "answer-type", "text", "Answer type")
	answerCmd.Flags().StringVar(&answer.AudioPath, "audio", "", "Recorded answer path")
	cmd.AddCommand(answerCmd)

	return cmd
}

func runAdd(cmd *cobra.Command, cc *commandContext, payload models.Payload, opts addOptions) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	sess, err := cc.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	settled := uploadSettled
	if opts.wait {
		if err := sess.store.Start(cmd.Context()); err != nil {
			return err
		}
		settled = terminal
	}

	item, err := sess.store.AddPendingItem(cmd.Context(), payload)
	if item == nil {
		return err
	}
	if err != nil {
		sess.logger.Warn().Err(err).Str("item_id", item.ID).Msg("item kept in memory only")
	}

	waitCtx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	final, err := waitForItem(waitCtx, sess.store, item.ID, settled)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(cmd, final)
	}
	printItems(cmd.OutOrStdout(), []models.TimelineItem{final})
	if final.Status == models.StatusTranscribing && !opts.wait {
		fmt.Fprintln(cmd.OutOrStdout(), "Transcription continues under `timeline run`.")
	}
	return nil
}
