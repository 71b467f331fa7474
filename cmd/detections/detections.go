// Package detections implements commands to review stored detections.
package detections

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/datastore"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
)

// reviewStore is the part of the datastore the commands use.
type reviewStore interface {
	QueryRecentDetections(ctx context.Context, limit int) ([]detection.Record, error)
	MarkFalsePositive(ctx context.Context, id uint, flagged bool) error
	DetectionAudio(ctx context.Context, id uint) ([]byte, error)
	Close() error
}

// opener is replaced in tests.
type opener func(ctx context.Context, settings *conf.OutputSettings) (reviewStore, error)

func openStore(ctx context.Context, settings *conf.OutputSettings) (reviewStore, error) {
	store, err := datastore.New(settings, nil)
	if err != nil {
		return nil, err
	}
	if err := store.Open(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Command creates the detections command with its sub-commands.
func Command(settings *conf.Settings) *cobra.Command {
	return command(settings, openStore)
}

func command(settings *conf.Settings, open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detections",
		Short: "Review stored detections",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent detections, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), settings, open, func(ctx context.Context, s reviewStore) error {
				records, err := s.QueryRecentDetections(ctx, limit)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of detections to show")

	var unflag bool
	flagCmd := &cobra.Command{
		Use:   "flag-fp <id>",
		Short: "Flag a detection as a false positive",
		Long:  "Flag a detection as a false positive. The learning loop lowers the false-positive estimate of its trigger on the next cycle.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), settings, open, func(ctx context.Context, s reviewStore) error {
				if err := s.MarkFalsePositive(ctx, id, !unflag); err != nil {
					return err
				}
				state := "flagged"
				if unflag {
					state = "cleared"
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "detection %d %s\n", id, state)
				return err
			})
		},
	}
	flagCmd.Flags().BoolVar(&unflag, "clear", false, "Remove the false-positive flag instead")

	exportCmd := &cobra.Command{
		Use:   "export <id> <file.wav>",
		Short: "Write the audio clip of a detection to a WAV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), settings, open, func(ctx context.Context, s reviewStore) error {
				audio, err := s.DetectionAudio(ctx, id)
				if err != nil {
					return err
				}
				if len(audio) == 0 {
					return errors.Newf("detection %d has no audio", id).
						Component("detections").
						Category(errors.CategoryNotFound).
						Build()
				}
				return os.WriteFile(args[1], audio, 0o644)
			})
		},
	}

	cmd.AddCommand(listCmd, flagCmd, exportCmd)
	return cmd
}

func withStore(ctx context.Context, settings *conf.Settings, open opener, fn func(context.Context, reviewStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := open(ctx, &settings.Output)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 0)
	if err != nil || id == 0 {
		return 0, errors.Newf("invalid detection id %q", arg).
			Component("detections").
			Category(errors.CategoryValidation).
			Build()
	}
	return uint(id), nil
}

func printRecords(w io.Writer, records []detection.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no detections")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTRIGGER\tCONFIDENCE\tACTIVITY\tFP\tTRANSCRIPT")
	for i := range records {
		r := &records[i]
		fp := ""
		if r.FalsePositive {
			fp = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Local().Format(time.DateTime), r.Trigger, r.Confidence, r.Activity, fp, r.Transcript)
	}
	return tw.Flush()
}
