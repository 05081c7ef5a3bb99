package spotify

import (
	"strconv"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"setlist/internal/core"
)

func convertTrack(track *spotify.FullTrack) core.Track {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	return core.Track{
		ID:          string(track.ID),
		Title:       track.Name,
		Artist:      strings.Join(artists, ", "),
		Album:       track.Album.Name,
		URI:         string(track.URI),
		Duration:    time.Duration(track.Duration) * time.Millisecond,
		PreviewURL:  track.PreviewURL,
		ExternalURL: track.ExternalURLs["spotify"],
	}
}

func convertArtist(artist *spotify.FullArtist) core.ArtistProfile {
	images := make([]core.Image, 0, len(artist.Images))
	for _, img := range artist.Images {
		images = append(images, core.Image{URL: img.URL, Height: int(img.Height), Width: int(img.Width)})
	}

	return core.ArtistProfile{
		ID:          string(artist.ID),
		Name:        artist.Name,
		Images:      images,
		Popularity:  int(artist.Popularity),
		Followers:   int(artist.Followers.Count),
		Genres:      append([]string(nil), artist.Genres...),
		ExternalURL: artist.ExternalURLs["spotify"],
	}
}

func convertAlbum(album *spotify.SimpleAlbum) core.Album {
	return core.Album{
		ID:          string(album.ID),
		Name:        album.Name,
		ReleaseDate: album.ReleaseDate,
		AlbumGroup:  album.AlbumGroup,
	}
}

// albumTypes maps include_groups names onto the library's album types. Unknown names are
// ignored; an empty result means album and single.
func albumTypes(groups []string) []spotify.AlbumType {
	types := make([]spotify.AlbumType, 0, len(groups))
	for _, group := range groups {
		switch strings.ToLower(strings.TrimSpace(group)) {
		case "album":
			types = append(types, spotify.AlbumTypeAlbum)
		case "single":
			types = append(types, spotify.AlbumTypeSingle)
		case "appears_on":
			types = append(types, spotify.AlbumTypeAppearsOn)
		case "compilation":
			types = append(types, spotify.AlbumTypeCompilation)
		}
	}
	if len(types) == 0 {
		types = append(types, spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle)
	}
	return types
}

// parseRetryAfter reads a Retry-After header given in seconds. Anything else is zero.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
