package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/client"
	"tempo/internal/config"
	"tempo/internal/library"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect and export library files",
	}
	libraryCmd.AddCommand(newLibraryInfoCommand(ctx))
	libraryCmd.AddCommand(newLibraryPlaylistsCommand(ctx))
	libraryCmd.AddCommand(newLibraryTracksCommand(ctx))
	libraryCmd.AddCommand(newLibraryExportCommand(ctx))
	return libraryCmd
}

// loadLibrary resolves path locally so a websocket worker with another
// working directory opens the same file.
func loadLibrary(ctx context.Context, cl *client.Client, path string, reload bool) error {
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	return cl.Library.Load(ctx, resolved, reload)
}

func newLibraryInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var reload bool
	cmd := &cobra.Command{
		Use:   "info <library.xml>",
		Short: "Load a library file and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := loadLibrary(runCtx, cl, args[0], reload); err != nil {
					return err
				}
				meta := cl.Library.Meta()
				input, _ := cl.Library.Paths()
				if asJSON {
					return writeJSON(cmd, libraryInfoJSON{Path: input, Meta: meta})
				}
				report{title: "Library", rows: []statusRow{
					infoRow("Path", input),
					infoRow("Tracks", strconv.Itoa(meta.TrackCount)),
					infoRow("Playlists", strconv.Itoa(meta.PlaylistCount)),
					infoRow("Size", formatBytes(meta.FileSize)),
					infoRow("Modified", meta.ModifiedAt.Local().Format(time.DateTime)),
				}}.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&reload, "reload", false, "Re-read the file even if the worker already holds it")
	return cmd
}

func newLibraryPlaylistsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "playlists <library.xml>",
		Short: "List playlists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := loadLibrary(runCtx, cl, args[0], false); err != nil {
					return err
				}
				lib := cl.Library.Library()
				idx := cl.Library.Index()
				if asJSON {
					return writeJSON(cmd, playlistsJSON(idx, lib.Playlists))
				}
				rows := make([][]string, 0, len(lib.Playlists))
				for _, pl := range lib.Playlists {
					rows = append(rows, []string{
						pl.PlaylistPersistentID,
						playlistPath(idx, pl),
						strconv.Itoa(len(idx.TracksByPlaylist[pl.PlaylistPersistentID])),
						yesNo(pl.Folder),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Tracks", "Folder"}, rows, 2))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// playlistPath renders a playlist name prefixed by its folders.
func playlistPath(idx library.Index, pl *library.Playlist) string {
	ancestors := idx.Ancestors(pl.PlaylistPersistentID)
	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Name)
	}
	parts = append(parts, pl.Name)
	return strings.Join(parts, " / ")
}

func newLibraryTracksCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var playlistID string
	var query string
	var missingBPM bool
	cmd := &cobra.Command{
		Use:   "tracks <library.xml>",
		Short: "List tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := loadLibrary(runCtx, cl, args[0], false); err != nil {
					return err
				}
				tracks, err := selectTracks(cl, playlistID, query)
				if err != nil {
					return err
				}
				if missingBPM {
					filtered := tracks[:0]
					for _, track := range tracks {
						if !track.HasBPM() {
							filtered = append(filtered, track)
						}
					}
					tracks = filtered
				}
				if asJSON {
					return writeJSON(cmd, tracksJSON(tracks))
				}
				rows := make([][]string, 0, len(tracks))
				for _, track := range tracks {
					bpm := "-"
					if track.HasBPM() {
						bpm = strconv.Itoa(track.BPM)
					}
					rows = append(rows, []string{
						track.StableID(), track.Artist, track.Name, track.Genre, bpm,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Artist", "Name", "Genre", "BPM"}, rows, 4))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVarP(&playlistID, "playlist", "p", "", "Only tracks in this playlist (persistent ID)")
	cmd.Flags().StringVarP(&query, "search", "s", "", "Filter by name, artist, album, or genre")
	cmd.Flags().BoolVar(&missingBPM, "missing-bpm", false, "Only tracks without a BPM")
	return cmd
}

func selectTracks(cl *client.Client, playlistID, query string) ([]*library.Track, error) {
	lib := cl.Library.Library()
	if playlistID == "" {
		return lib.Search(query), nil
	}
	idx := cl.Library.Index()
	if _, ok := idx.PlaylistByID[playlistID]; !ok {
		return nil, fmt.Errorf("playlist %q not found", playlistID)
	}
	tracks := idx.TracksByPlaylist[playlistID]
	if query == "" {
		return tracks, nil
	}
	matches := map[*library.Track]struct{}{}
	for _, track := range lib.Search(query) {
		matches[track] = struct{}{}
	}
	var out []*library.Track
	for _, track := range tracks {
		if _, ok := matches[track]; ok {
			out = append(out, track)
		}
	}
	return out, nil
}

func newLibraryExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	var playlists []string
	cmd := &cobra.Command{
		Use:   "export <library.xml>",
		Short: "Write the library, or a playlist subset of it, to a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("--out is required")
			}
			return ctx.withClient(cmd, client.Options{}, func(runCtx context.Context, cl *client.Client) error {
				if err := loadLibrary(runCtx, cl, args[0], false); err != nil {
					return err
				}
				// Nothing is edited; marking the mirror dirty enables the write.
				if err := cl.Library.Mutate(func(*library.Library) error { return nil }); err != nil {
					return err
				}
				target, err := config.ExpandPath(output)
				if err != nil {
					return err
				}
				cl.Library.SetOutputPath(target)
				if err := cl.Library.Write(runCtx, playlists); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "out", "o", "", "Destination library file")
	cmd.Flags().StringSliceVarP(&playlists, "playlist", "p", nil, "Playlist persistent IDs to keep (repeatable)")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
