package i18n

// germanMessages contains all German translations.
var germanMessages = map[string]string{
	"error.generic":            "Etwas ist schiefgelaufen. Bitte versuche es erneut.",
	"error.not_authenticated":  "Nicht bei Spotify angemeldet. Führe zuerst `setlist login` aus.",
	"error.auth_expired":       "Deine Spotify-Sitzung ist abgelaufen. Bitte melde dich erneut an.",
	"error.rate_limited":       "Spotify drosselt Anfragen. Versuche es in %s erneut.",
	"error.spotify":            "Spotify-Anfrage fehlgeschlagen (%s, Status %d).",
	"error.no_project":         "Kein Projekt ausgewählt. Erstelle eines mit `setlist project create`.",
	"error.not_found":          "%s %q nicht gefunden.",
	"error.invalid":            "Ungültig (%s): %s.",
	"error.index":              "An Position %[2]d gibt es kein %[1]s.",
	"error.search_failed":      "Spotify-Suche nach %q fehlgeschlagen.",
	"error.no_artist_match":    "Kein Spotify-Künstler passt zu %q.",
	"error.fetch_failed":       "Tracks für %s konnten nicht geladen werden.",
	"error.publish_create":     "Die Playlist %q konnte nicht erstellt werden.",
	"error.publish_batch":      "Hinzufügen bei Batch %d nach %d Tracks abgebrochen. Die Playlist liegt unter %s.",
	"error.nothing_to_publish": "Das Projekt hat noch keine Tracks zum Veröffentlichen.",

	"prompt.choose_artist": "Mehrere Künstler passen zu %q. Bestätige einen mit `setlist artist confirm`:",

	"format.artist_choice": "  %s  %s (%d Follower)",
	"format.track":         "%3d. %s - %s",
	"format.duplicate":     " [Duplikat]",

	"success.project_created":  "Projekt %q erstellt.",
	"success.project_switched": "Zu %q gewechselt.",
	"success.project_deleted":  "Projekt %q gelöscht.",
	"success.artist_added":     "%s zum Lineup hinzugefügt.",
	"success.artist_removed":   "%s und die zugehörigen Tracks entfernt.",
	"success.artist_confirmed": "%s bestätigt.",
	"success.artist_undone":    "%s zurückgesetzt.",
	"success.tracks_added":     "%d Tracks für %s hinzugefügt (%d bereits in der Playlist).",
	"success.track_removed":    "Track entfernt.",
	"success.track_moved":      "Track verschoben.",
	"success.lineup_imported":  "%d Künstler importiert (%d übersprungen).",
	"success.published":        "%d Tracks in %s veröffentlicht",
	"success.logged_in":        "Angemeldet als %s.",
	"success.logged_out":       "Abgemeldet.",
}
