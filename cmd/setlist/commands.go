package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"setlist/internal/core"
	httpserver "setlist/internal/http"
	"setlist/internal/playlist"
	"setlist/internal/storage"
)

func requireSpotify() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required (--spotify-client-id or %s)", flagToEnvVar("spotify-client-id"))
	}
	return nil
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize setlist with your Spotify account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if err := requireSpotify(); err != nil {
				return err
			}

			state := uuid.NewString()
			fmt.Println("Open this URL and approve access, then paste the URL you were redirected to:")
			fmt.Println(a.auth.AuthURL(state))

			input, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read authorization response: %w", err)
			}
			code, err := authorizationCode(input, state)
			if err != nil {
				return err
			}

			token, err := a.auth.Exchange(ctx, code)
			if err != nil {
				return err
			}
			a.store.SetAuthTokens(token.AccessToken, token.RefreshToken)

			user, err := a.spotify.CurrentUser(ctx)
			if err != nil {
				return a.report(err)
			}
			name := user.DisplayName
			if name == "" {
				name = user.ID
			}
			a.notify("success.logged_in", name)
			return nil
		}),
	}
}

// authorizationCode accepts either the full redirect URL or the bare code.
func authorizationCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &core.ValidationError{Field: "code", Reason: "nothing was pasted"}
	}

	if !strings.Contains(input, "?") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	query := u.Query()
	if reason := query.Get("error"); reason != "" {
		return "", fmt.Errorf("authorization denied: %s", reason)
	}
	if got := query.Get("state"); got != state {
		return "", &core.ValidationError{Field: "state", Reason: "does not match this login attempt"}
	}
	code := query.Get("code")
	if code == "" {
		return "", &core.ValidationError{Field: "code", Reason: "missing from redirect URL"}
	}
	return code, nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Spotify credentials",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, a *app, _ []string) error {
			a.store.ClearAuthTokens()
			a.notify("success.logged_out")
			return nil
		}),
	}
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage playlist projects",
	}

	var description string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a project and make it current",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			project, err := a.store.CreateProject(strings.Join(args, " "), description)
			if err != nil {
				return a.report(err)
			}
			a.notify("success.project_created", project.Title)
			return nil
		}),
	}
	create.Flags().StringVar(&description, "description", "", "Playlist description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, a *app, _ []string) error {
			current := a.store.CurrentIndex()
			for i, p := range a.store.Projects() {
				marker := " "
				if i == current {
					marker = "*"
				}
				line := fmt.Sprintf("%s %d  %s  (%d artists, %d tracks)", marker, i, p.Title, len(p.Artists), len(p.OrderedTracks))
				if p.ExternalPlaylistURL != "" {
					line += "  " + p.ExternalPlaylistURL
				}
				a.print(line)
			}
			return nil
		}),
	}

	switchCmd := &cobra.Command{
		Use:   "switch <index>",
		Short: "Make another project current",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if err := a.store.SwitchProject(index); err != nil {
				return a.report(err)
			}
			a.notify("success.project_switched", currentTitle(a.store))
			return nil
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			projects := a.store.Projects()
			if err := a.store.DeleteProject(index); err != nil {
				return a.report(err)
			}
			a.notify("success.project_deleted", projects[index].Title)
			return nil
		}),
	}

	rename := &cobra.Command{
		Use:   "rename <title>",
		Short: "Rename the current project",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			return a.report(a.store.RenameProject(strings.Join(args, " ")))
		}),
	}

	link := &cobra.Command{
		Use:   "link <playlist-id> [url]",
		Short: "Point the current project at an existing Spotify playlist",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			if err := a.store.SetExternalPlaylistID(args[0]); err != nil {
				return a.report(err)
			}
			playlistURL := "https://open.spotify.com/playlist/" + args[0]
			if len(args) == 2 {
				playlistURL = args[1]
			}
			return a.report(a.store.SetExternalPlaylistURL(playlistURL))
		}),
	}

	cmd.AddCommand(create, list, switchCmd, deleteCmd, rename, link)
	return cmd
}

func newArtistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artist",
		Short: "Manage the lineup of the current project",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a lineup name without searching",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			name := strings.Join(args, " ")
			if err := a.store.AddArtist(name); err != nil {
				return a.report(err)
			}
			a.notify("success.artist_added", name)
			return nil
		}),
	}

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an artist and the tracks only they contributed",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			name := strings.Join(args, " ")
			if err := a.store.RemoveArtist(name); err != nil {
				return a.report(err)
			}
			a.notify("success.artist_removed", name)
			return nil
		}),
	}

	resolve := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Search Spotify for an artist and fetch their tracks on a unique match",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if err := requireSpotify(); err != nil {
				return err
			}
			_, err := a.curator.ResolveArtist(ctx, strings.Join(args, " "))
			return err
		}),
	}

	confirm := &cobra.Command{
		Use:   "confirm <spotify-artist-id> <name>",
		Short: "Bind a lineup name to one of the search candidates and fetch their tracks",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if err := requireSpotify(); err != nil {
				return err
			}
			id, name := args[0], strings.Join(args[1:], " ")

			candidates, err := a.spotify.SearchArtists(ctx, name, config.Fetch.SearchLimit)
			if err != nil {
				return a.report(err)
			}
			for _, candidate := range candidates {
				if candidate.ID == id {
					_, err := a.curator.ConfirmAndFetch(ctx, name, candidate)
					return err
				}
			}
			return a.report(&core.NotFoundError{Kind: "artist match", Key: id})
		}),
	}

	undo := &cobra.Command{
		Use:   "undo <name>",
		Short: "Reset a confirmed artist and drop their tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			name := strings.Join(args, " ")
			if err := a.store.UndoArtist(name); err != nil {
				return a.report(err)
			}
			a.notify("success.artist_undone", name)
			return nil
		}),
	}

	latest := &cobra.Command{
		Use:   "latest <name>",
		Short: "Add the tracks of a confirmed artist's newest release",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			if err := requireSpotify(); err != nil {
				return err
			}
			name := strings.Join(args, " ")
			project, err := a.store.CurrentProject()
			if err != nil {
				return a.report(err)
			}
			i := playlist.FindArtist(&project, name)
			if i < 0 || !project.Artists[i].Confirmed {
				return a.report(&core.NotFoundError{Kind: "confirmed artist", Key: name})
			}

			tracks := a.spotify.LatestAlbumTracks(ctx, project.Artists[i].ExternalID)
			processed, err := a.store.AddArtistTracksTo(project.ID, name, tracks)
			if err != nil {
				return a.report(err)
			}
			added := 0
			for _, t := range processed {
				if !t.Duplicate {
					added++
				}
			}
			a.notify("success.tracks_added", added, name, len(processed)-added)
			return nil
		}),
	}

	var resolveAll bool
	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Add every artist of a pasted lineup",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			text, err := readInput(args[0])
			if err != nil {
				return err
			}
			report, err := a.curator.ImportLineup(text)
			if err != nil || !resolveAll {
				return err
			}
			if err := requireSpotify(); err != nil {
				return err
			}
			for _, name := range report.Added {
				if _, err := a.curator.ResolveArtist(ctx, name); err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					logger.Debug("Artist left unresolved", zap.String("artist", name), zap.Error(err))
				}
			}
			return nil
		}),
	}
	importCmd.Flags().BoolVar(&resolveAll, "resolve", false, "Resolve each imported artist right away")

	cmd.AddCommand(add, remove, resolve, confirm, undo, latest, importCmd)
	return cmd
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lineup: %w", err)
	}
	return string(data), nil
}

func newTracksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Inspect and reorder the playlist of the current project",
	}

	var artist string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the playlist in publish order",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, a *app, _ []string) error {
			project, err := a.store.CurrentProject()
			if err != nil {
				return a.report(err)
			}
			for _, line := range trackLines(a, &project, artist) {
				a.print(line)
			}
			return nil
		}),
	}
	list.Flags().StringVar(&artist, "artist", "", "Show one artist's tracks, duplicates included")

	remove := &cobra.Command{
		Use:   "remove <track-id>",
		Short: "Remove a track from the playlist and every artist",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			removed, err := a.store.RemoveTrack(args[0])
			if err != nil {
				return a.report(err)
			}
			if !removed {
				return a.report(&core.NotFoundError{Kind: "track", Key: args[0]})
			}
			a.notify("success.track_removed")
			return nil
		}),
	}

	move := &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move a track to another position",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			from, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return reportMove(a)(a.store.MoveTrack(from, to))
		}),
	}

	up := &cobra.Command{
		Use:   "up <index>",
		Short: "Move a track one position earlier",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return reportMove(a)(a.store.MoveTrackUp(index))
		}),
	}

	down := &cobra.Command{
		Use:   "down <index>",
		Short: "Move a track one position later",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return reportMove(a)(a.store.MoveTrackDown(index))
		}),
	}

	reorder := &cobra.Command{
		Use:   "reorder <track-id>...",
		Short: "Put the listed tracks first, in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			project, err := a.store.CurrentProject()
			if err != nil {
				return a.report(err)
			}
			if err := a.store.ReorderByIDs(listedFirst(args, project.OrderedTracks)); err != nil {
				return a.report(err)
			}
			a.notify("success.track_moved")
			return nil
		}),
	}

	cmd.AddCommand(list, remove, move, up, down, reorder)
	return cmd
}

// listedFirst returns the full id sequence with ids moved to the front and every other
// track kept in its current order.
func listedFirst(ids []string, ordered []core.Track) []string {
	listed := make(map[string]struct{}, len(ids))
	sequence := make([]string, 0, len(ordered)+len(ids))
	for _, id := range ids {
		if _, ok := listed[id]; ok {
			continue
		}
		listed[id] = struct{}{}
		sequence = append(sequence, id)
	}
	for _, track := range ordered {
		if _, ok := listed[track.ID]; !ok {
			sequence = append(sequence, track.ID)
		}
	}
	return sequence
}

func trackLines(a *app, project *core.Project, artist string) []string {
	tracks := playlist.OrderedTracks(project)
	if artist != "" {
		i := playlist.FindArtist(project, artist)
		if i < 0 {
			return []string{a.curator.Describe(&core.NotFoundError{Kind: "artist", Key: artist})}
		}
		tracks = project.Artists[i].Tracks
	}

	lines := make([]string, 0, len(tracks))
	for i, t := range tracks {
		line := a.localizer.T("format.track", i, t.Artist, t.Title)
		if t.Duplicate {
			line += a.localizer.T("format.duplicate")
		}
		lines = append(lines, line)
	}
	return lines
}

func reportMove(a *app) func(bool, error) error {
	return func(moved bool, err error) error {
		if err != nil {
			return a.report(err)
		}
		if moved {
			a.notify("success.track_moved")
		}
		return nil
	}
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, &core.ValidationError{Field: "index", Reason: fmt.Sprintf("%q is not a number", arg)}
	}
	return index, nil
}

func newPublishCmd() *cobra.Command {
	var private bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Create a Spotify playlist from the current project",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if err := requireSpotify(); err != nil {
				return err
			}
			_, err := a.curator.Publish(ctx, config.App.PublicPlaylist && !private)
			return err
		}),
	}
	cmd.Flags().BoolVar(&private, "private", false, "Create the playlist as private")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health and Prometheus metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			server := httpserver.NewServer(&config.Server, a.registry, a.ready, logger)

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Start(gCtx)
			})

			logger.Info("setlist serving",
				zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
				zap.Int("projects", len(a.store.Projects())))

			if err := g.Wait(); err != nil {
				logger.Error("setlist stopped with error", zap.Error(err))
				return err
			}

			logger.Info("setlist stopped gracefully")
			return nil
		}),
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved session: all projects and credentials",
		Args:  cobra.NoArgs,
		RunE: withStorage(func(_ context.Context, snapshot *storage.SnapshotStore, _ []string) error {
			if err := snapshot.Clear(); err != nil {
				return err
			}
			fmt.Println("Saved session deleted.")
			return nil
		}),
	}
}
