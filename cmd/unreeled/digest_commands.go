package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"unreeled/internal/digest"
	"unreeled/internal/ingest"
	"unreeled/internal/sources"
)

func newDigestCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Manage and send the subscriber email digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newDigestSendCommand(cmdCtx))
	cmd.AddCommand(newDigestSubscribeCommand(cmdCtx))
	cmd.AddCommand(newDigestUnsubscribeCommand(cmdCtx))
	cmd.AddCommand(newDigestListCommand(cmdCtx))
	return cmd
}

func withStore(cmdCtx *commandContext, fn func(*digest.Store) error) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := digest.OpenStore(cfg.Digest.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newDigestSendCommand(cmdCtx *commandContext) *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Email the digest for a day's artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			date := dateFlag
			if date == "" {
				date = sources.Day(time.Now())
			}
			doc, err := ingest.ReadArtifact(cfg.Output.DataDir, date)
			if err != nil {
				return fmt.Errorf("no artifact for %s: %w", date, err)
			}

			return withStore(cmdCtx, func(store *digest.Store) error {
				sender := digest.NewSender(cfg.Digest, store, logger)
				if err := sender.Send(cmd.Context(), doc); err != nil {
					return err
				}
				cmd.Printf("digest sent for %s\n", date)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Artifact date to send (YYYY-MM-DD, default today UTC)")
	return cmd
}

func newDigestSubscribeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <email> [media-type...]",
		Short: "Add a digest subscriber, optionally limited to media types",
		Long:  "Add a digest subscriber. Trailing arguments limit the digest to those media types (movie, tv, book, game, anime, music, podcast, comic, news, board_game); none means everything.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmdCtx, func(store *digest.Store) error {
				if err := store.Subscribe(cmd.Context(), args[0], args[1:]); err != nil {
					return err
				}
				cmd.Printf("subscribed %s\n", args[0])
				return nil
			})
		},
	}
}

func newDigestUnsubscribeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <email>",
		Short: "Remove a digest subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmdCtx, func(store *digest.Store) error {
				removed, err := store.Unsubscribe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not subscribed", args[0])
				}
				cmd.Printf("unsubscribed %s\n", args[0])
				return nil
			})
		},
	}
}

func newDigestListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List digest subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmdCtx, func(store *digest.Store) error {
				subscribers, err := store.Subscribers(cmd.Context())
				if err != nil {
					return err
				}
				if len(subscribers) == 0 {
					cmd.Println("no subscribers")
					return nil
				}
				rows := make([][]string, 0, len(subscribers))
				for _, sub := range subscribers {
					types := make([]string, 0, len(sub.MediaTypes))
					for _, mt := range sub.MediaTypes {
						types = append(types, string(mt))
					}
					label := strings.Join(types, ", ")
					if label == "" {
						label = "all"
					}
					rows = append(rows, []string{
						fmt.Sprint(sub.ID),
						sub.Email,
						label,
						sub.CreatedAt.Format("2006-01-02"),
					})
				}
				cmd.Println(renderTable(
					[]string{"ID", "Email", "Types", "Since"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
