package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":            "Something went wrong. Please try again.",
	"error.not_authenticated":  "Not logged in to Spotify. Run `setlist login` first.",
	"error.auth_expired":       "Your Spotify session expired. Please log in again.",
	"error.rate_limited":       "Spotify is rate limiting requests. Try again in %s.",
	"error.spotify":            "Spotify request failed (%s, status %d).",
	"error.no_project":         "No project selected. Create one with `setlist project create`.",
	"error.not_found":          "Couldn't find %s %q.",
	"error.invalid":            "Invalid %s: %s.",
	"error.index":              "There is no %s at position %d.",
	"error.search_failed":      "Couldn't search Spotify for %q.",
	"error.no_artist_match":    "No Spotify artist matches %q.",
	"error.fetch_failed":       "Couldn't load tracks for %s.",
	"error.publish_create":     "Couldn't create the playlist %q.",
	"error.publish_batch":      "Adding tracks stopped at batch %d after %d tracks. The playlist is at %s.",
	"error.nothing_to_publish": "The project has no tracks to publish yet.",

	// Prompts
	"prompt.choose_artist": "Several artists match %q. Confirm one with `setlist artist confirm`:",

	// Format helpers
	"format.artist_choice": "  %s  %s (%d followers)",
	"format.track":         "%3d. %s - %s",
	"format.duplicate":     " [duplicate]",

	// Success messages
	"success.project_created":  "Created project %q.",
	"success.project_switched": "Switched to %q.",
	"success.project_deleted":  "Deleted project %q.",
	"success.artist_added":     "Added %s to the lineup.",
	"success.artist_removed":   "Removed %s and their tracks.",
	"success.artist_confirmed": "Confirmed %s.",
	"success.artist_undone":    "Reset %s.",
	"success.tracks_added":     "Added %d tracks for %s (%d already in the playlist).",
	"success.track_removed":    "Removed the track.",
	"success.track_moved":      "Moved the track.",
	"success.lineup_imported":  "Imported %d artists (%d skipped).",
	"success.published":        "Published %d tracks to %s",
	"success.logged_in":        "Logged in as %s.",
	"success.logged_out":       "Logged out.",
}
