package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tempo/internal/client"
	"tempo/internal/library"
)

type analyzeFlags struct {
	root  string
	force bool
	save  bool
	email string
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.root, "root", "r", "", "Folder the audio server serves tracks from (required)")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Re-analyze tracks that already have a BPM")
	cmd.Flags().BoolVar(&f.save, "save", false, "Write detected BPMs back into the library file")
	cmd.Flags().StringVar(&f.email, "email", "", "Email recorded with rating tags")
	_ = cmd.MarkFlagRequired("root")
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect track tempos and write them as BPM tags",
	}
	analyzeCmd.AddCommand(newAnalyzeTrackCommand(ctx))
	analyzeCmd.AddCommand(newAnalyzePlaylistCommand(ctx))
	return analyzeCmd
}

// prepareAnalysis loads the library and starts the audio server the decoder
// reads from.
func prepareAnalysis(runCtx context.Context, cl *client.Client, libraryPath string, flags analyzeFlags) error {
	if err := loadLibrary(runCtx, cl, libraryPath, false); err != nil {
		return err
	}
	root, err := resolveRoot(flags.root)
	if err != nil {
		return err
	}
	return cl.Server.Start(runCtx, root)
}

func saveIfRequested(runCtx context.Context, out io.Writer, cl *client.Client, flags analyzeFlags) error {
	if !flags.save || cl.Library.WriteState() != library.WriteReady {
		return nil
	}
	if err := cl.Library.Write(runCtx, nil); err != nil {
		return err
	}
	_, output := cl.Library.Paths()
	fmt.Fprintf(out, "Saved library to %s\n", output)
	return nil
}

func newAnalyzeTrackCommand(ctx *commandContext) *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "track <library.xml> <track-id>",
		Short: "Analyze one track",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.Options{UserEmail: flags.email}
			return ctx.withClient(cmd, opts, func(runCtx context.Context, cl *client.Client) error {
				if err := prepareAnalysis(runCtx, cl, args[0], flags); err != nil {
					return err
				}
				res, err := cl.Analysis.AnalyzeTrack(runCtx, args[1], flags.force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Skipped {
					fmt.Fprintf(out, "%s already has %d BPM (use --force to re-analyze)\n", res.TrackID, res.BPM)
					return nil
				}
				fmt.Fprintf(out, "%s: %d BPM\n", res.TrackID, res.BPM)
				return saveIfRequested(runCtx, out, cl, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAnalyzePlaylistCommand(ctx *commandContext) *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "playlist <library.xml> <playlist-id>",
		Short: "Analyze every track of a playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.Options{UserEmail: flags.email}
			return ctx.withClient(cmd, opts, func(runCtx context.Context, cl *client.Client) error {
				if err := prepareAnalysis(runCtx, cl, args[0], flags); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				progress := newBatchProgress(out)
				summary, err := cl.Analysis.AnalyzePlaylist(runCtx, args[1], flags.force, progress.update)
				progress.finish()
				if err != nil {
					return err
				}
				renderSummary(out, summary)
				if summary.Analyzed == 0 {
					return nil
				}
				return saveIfRequested(runCtx, out, cl, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// batchProgress draws a bar on terminals and plain lines elsewhere.
type batchProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newBatchProgress(out io.Writer) *batchProgress {
	return &batchProgress{out: out}
}

func (p *batchProgress) update(done, total int, res client.Result, err error) {
	if !shouldColorize(p.out) {
		switch {
		case err != nil:
			fmt.Fprintf(p.out, "[%d/%d] %s failed: %v\n", done, total, res.TrackID, err)
		case res.Skipped:
			fmt.Fprintf(p.out, "[%d/%d] %s skipped (%d BPM)\n", done, total, res.TrackID, res.BPM)
		default:
			fmt.Fprintf(p.out, "[%d/%d] %s %d BPM\n", done, total, res.TrackID, res.BPM)
		}
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(res.TrackID)
	_ = p.bar.Add(1)
}

func (p *batchProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func renderSummary(out io.Writer, summary client.Summary) {
	rows := [][]string{
		{"Analyzed", strconv.Itoa(summary.Analyzed)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Failed", strconv.Itoa(summary.Failed)},
	}
	fmt.Fprintln(out, renderTable([]string{"Result", "Tracks"}, rows, 1))
	if len(summary.Failures) == 0 {
		return
	}
	failures := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, []string{f.TrackID, f.Err.Error()})
	}
	fmt.Fprintln(out, renderTable([]string{"Track", "Error"}, failures))
}
