package core

import (
	"time"
)

// Track is one song eligible for playlist inclusion.
type Track struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Album       string        `json:"album"`
	Artist      string        `json:"artist"`
	URI         string        `json:"uri"`
	Duration    time.Duration `json:"duration,omitempty"`
	PreviewURL  string        `json:"previewUrl,omitempty"`
	ExternalURL string        `json:"externalUrl,omitempty"`
	// Duplicate is derived by the dedup engine and never set by callers.
	Duplicate bool `json:"duplicate"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ArtistProfile is the subset of a remote artist record the curator consumes.
type ArtistProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Images      []Image  `json:"images,omitempty"`
	Popularity  int      `json:"popularity"`
	Followers   int      `json:"followers"`
	Genres      []string `json:"genres,omitempty"`
	ExternalURL string   `json:"externalUrl,omitempty"`
}

// Artist is a lineup name the user is building a playlist around.
type Artist struct {
	Name       string         `json:"name"`
	ExternalID string         `json:"externalId,omitempty"`
	Profile    *ArtistProfile `json:"profile,omitempty"`
	Confirmed  bool           `json:"confirmed"`
	Tracks     []Track        `json:"tracks"`
}

// Project is one playlist-in-progress.
type Project struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	ExternalPlaylistID  string    `json:"externalPlaylistId,omitempty"`
	ExternalPlaylistURL string    `json:"externalPlaylistUrl,omitempty"`
	Artists             []Artist  `json:"artists"`
	OrderedTracks       []Track   `json:"orderedTracks"`
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (p Project) Clone() Project {
	out := p
	out.Artists = make([]Artist, len(p.Artists))
	for i, a := range p.Artists {
		out.Artists[i] = a.Clone()
	}
	out.OrderedTracks = append([]Track(nil), p.OrderedTracks...)
	return out
}

func (a Artist) Clone() Artist {
	out := a
	out.Tracks = append([]Track(nil), a.Tracks...)
	if a.Profile != nil {
		profile := *a.Profile
		profile.Images = append([]Image(nil), a.Profile.Images...)
		profile.Genres = append([]string(nil), a.Profile.Genres...)
		out.Profile = &profile
	}
	return out
}

type Album struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"releaseDate"`
	AlbumGroup  string `json:"albumGroup,omitempty"`
}

type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	URI  string `json:"uri"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Country     string `json:"country"`
}

// State is the persisted document: projects, the active pointer and the credential pair.
type State struct {
	Projects            []Project `json:"projects"`
	CurrentProjectIndex int       `json:"currentProjectIndex"`
	AccessToken         *string   `json:"accessToken"`
	RefreshToken        *string   `json:"refreshToken"`
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := s
	out.Projects = make([]Project, len(s.Projects))
	for i, p := range s.Projects {
		out.Projects[i] = p.Clone()
	}
	if s.AccessToken != nil {
		v := *s.AccessToken
		out.AccessToken = &v
	}
	if s.RefreshToken != nil {
		v := *s.RefreshToken
		out.RefreshToken = &v
	}
	return out
}
