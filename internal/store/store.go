// Package store owns the session state: every project, the current-project cursor and the
// credential pair. Mutations are serialised, persisted as a full snapshot and fanned out to
// subscribers once they land.
package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"setlist/internal/core"
	"setlist/internal/playlist"
)

// Persister reads and writes the durable state document.
type Persister interface {
	// Load returns the stored state; found is false when nothing was saved yet.
	Load() (state core.State, found bool, err error)
	Save(state core.State) error
}

// Status holds the transient flags views render. It is never persisted.
type Status struct {
	Loading bool
	Error   string
}

// Option configures a Store.
type Option func(*Store)

// WithPersistFailures counts snapshot writes that failed.
func WithPersistFailures(counter prometheus.Counter) Option {
	return func(s *Store) {
		s.persistFailures = counter
	}
}

// WithClock overrides the clock used to stamp new projects.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the single source of truth for all projects.
type Store struct {
	mu     sync.Mutex
	state  core.State
	status Status

	persister       Persister
	persistFailures prometheus.Counter
	logger          *zap.Logger
	now             func() time.Time

	subscribers map[int]func(core.State)
	nextSub     int
}

// New builds a store with empty state. Call Load to restore the persisted document.
func New(persister Persister, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		persister:   persister,
		logger:      logger.Named("store"),
		now:         time.Now,
		subscribers: make(map[int]func(core.State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the persisted document. A missing document
// leaves the store empty. Loading does not write.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}

	state, found, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !found {
		s.state = core.State{}
		return nil
	}

	s.state = state
	s.state.CurrentProjectIndex = clampIndex(s.state.CurrentProjectIndex, len(s.state.Projects))

	s.logger.Info("State restored",
		zap.Int("projects", len(s.state.Projects)),
		zap.Int("current", s.state.CurrentProjectIndex))
	return nil
}

// Subscribe registers fn to receive a copy of the state after every mutation.
func (s *Store) Subscribe(fn func(core.State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// CreateProject appends a project and makes it current.
func (s *Store) CreateProject(title, description string) (core.Project, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.Project{}, &core.ValidationError{Field: "title", Reason: "must not be blank"}
	}

	var created core.Project
	err := s.mutate(func(st *core.State) (bool, error) {
		project := core.Project{
			ID:            uuid.NewString(),
			Title:         title,
			Description:   strings.TrimSpace(description),
			CreatedAt:     s.now().UTC(),
			Artists:       []core.Artist{},
			OrderedTracks: []core.Track{},
		}
		st.Projects = append(st.Projects, project)
		st.CurrentProjectIndex = len(st.Projects) - 1
		created = project.Clone()
		return true, nil
	})
	return created, err
}

// SwitchProject moves the cursor to index.
func (s *Store) SwitchProject(index int) error {
	return s.mutate(func(st *core.State) (bool, error) {
		if index < 0 || index >= len(st.Projects) {
			return false, &core.IndexError{Kind: "project", Index: index, Len: len(st.Projects)}
		}
		if index == st.CurrentProjectIndex {
			return false, nil
		}
		st.CurrentProjectIndex = index
		return true, nil
	})
}

// DeleteProject removes the project at index. The cursor keeps pointing at the same
// project when it sat after the removed one.
func (s *Store) DeleteProject(index int) error {
	return s.mutate(func(st *core.State) (bool, error) {
		if index < 0 || index >= len(st.Projects) {
			return false, &core.IndexError{Kind: "project", Index: index, Len: len(st.Projects)}
		}

		st.Projects = append(st.Projects[:index], st.Projects[index+1:]...)
		if index <= st.CurrentProjectIndex {
			st.CurrentProjectIndex--
		}
		st.CurrentProjectIndex = clampIndex(st.CurrentProjectIndex, len(st.Projects))
		return true, nil
	})
}

// RenameProject retitles the current project.
func (s *Store) RenameProject(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &core.ValidationError{Field: "title", Reason: "must not be blank"}
	}

	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		if p.Title == title {
			return false, nil
		}
		p.Title = title
		return true, nil
	})
}

// AddArtist appends an unconfirmed artist to the current project.
func (s *Store) AddArtist(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "artist", Reason: "must not be blank"}
	}

	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		return addArtist(p, name)
	})
}

// AddArtistTo is AddArtist against a specific project.
func (s *Store) AddArtistTo(projectID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "artist", Reason: "must not be blank"}
	}

	return s.mutateProject(projectID, func(p *core.Project) (bool, error) {
		return addArtist(p, name)
	})
}

// RemoveArtist drops the artist and cascades its tracks out of the aggregate.
func (s *Store) RemoveArtist(name string) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		i := playlist.FindArtist(p, name)
		if i < 0 {
			return false, &core.NotFoundError{Kind: "artist", Key: name}
		}
		playlist.RemoveArtistTracks(p, i)
		p.Artists = append(p.Artists[:i], p.Artists[i+1:]...)
		return true, nil
	})
}

// ConfirmArtist binds the named artist in the current project to a remote identity.
func (s *Store) ConfirmArtist(name string, profile core.ArtistProfile) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		return confirm(p, name, profile)
	})
}

// ConfirmArtistIn is ConfirmArtist against a specific project, for completions that
// started before the user switched away.
func (s *Store) ConfirmArtistIn(projectID, name string, profile core.ArtistProfile) error {
	return s.mutateProject(projectID, func(p *core.Project) (bool, error) {
		return confirm(p, name, profile)
	})
}

// UndoArtist reverts a confirmation and cascades the artist's tracks out of the aggregate.
func (s *Store) UndoArtist(name string) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		i := playlist.FindArtist(p, name)
		if i < 0 {
			return false, &core.NotFoundError{Kind: "artist", Key: name}
		}

		artist := &p.Artists[i]
		if !artist.Confirmed && len(artist.Tracks) == 0 {
			return false, nil
		}

		playlist.RemoveArtistTracks(p, i)
		artist.Confirmed = false
		artist.ExternalID = ""
		artist.Profile = nil
		artist.Tracks = []core.Track{}
		return true, nil
	})
}

// AddArtistTracks runs candidates through the dedup engine for the named artist.
func (s *Store) AddArtistTracks(name string, tracks []core.Track) ([]core.Track, error) {
	var processed []core.Track
	err := s.mutateCurrent(func(p *core.Project) (bool, error) {
		before := trackCount(p)
		var err error
		processed, err = playlist.AddTracks(p, name, tracks)
		return err == nil && trackCount(p) != before, err
	})
	return processed, err
}

// AddArtistTracksTo is AddArtistTracks against a specific project.
func (s *Store) AddArtistTracksTo(projectID, name string, tracks []core.Track) ([]core.Track, error) {
	var processed []core.Track
	err := s.mutateProject(projectID, func(p *core.Project) (bool, error) {
		before := trackCount(p)
		var err error
		processed, err = playlist.AddTracks(p, name, tracks)
		return err == nil && trackCount(p) != before, err
	})
	return processed, err
}

// RemoveTrack removes the track from the aggregate and every artist of the current project.
func (s *Store) RemoveTrack(trackID string) (bool, error) {
	var removed bool
	err := s.mutateCurrent(func(p *core.Project) (bool, error) {
		removed = playlist.RemoveTrack(p, trackID)
		return removed, nil
	})
	return removed, err
}

// MoveTrack repositions one aggregate entry. Out-of-range indices are ignored.
func (s *Store) MoveTrack(from, to int) (bool, error) {
	return s.move(func(p *core.Project) bool { return playlist.MoveTrack(p, from, to) })
}

// MoveTrackUp swaps the entry at index with the one before it.
func (s *Store) MoveTrackUp(index int) (bool, error) {
	return s.move(func(p *core.Project) bool { return playlist.MoveUp(p, index) })
}

// MoveTrackDown swaps the entry at index with the one after it.
func (s *Store) MoveTrackDown(index int) (bool, error) {
	return s.move(func(p *core.Project) bool { return playlist.MoveDown(p, index) })
}

// ReorderByIDs replaces the aggregate order with ids.
func (s *Store) ReorderByIDs(ids []string) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		before := trackIDs(p.OrderedTracks)
		playlist.ReorderByIDs(p, ids)
		return !slices.Equal(before, trackIDs(p.OrderedTracks)), nil
	})
}

// SetExternalPlaylistID links the current project to a remote playlist.
func (s *Store) SetExternalPlaylistID(id string) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		if p.ExternalPlaylistID == id {
			return false, nil
		}
		p.ExternalPlaylistID = id
		return true, nil
	})
}

// SetExternalPlaylistURL records where the linked playlist can be opened.
func (s *Store) SetExternalPlaylistURL(url string) error {
	return s.mutateCurrent(func(p *core.Project) (bool, error) {
		if p.ExternalPlaylistURL == url {
			return false, nil
		}
		p.ExternalPlaylistURL = url
		return true, nil
	})
}

// SetPublishedPlaylist records the remote playlist on the project that was published.
func (s *Store) SetPublishedPlaylist(projectID, id, url string) error {
	return s.mutateProject(projectID, func(p *core.Project) (bool, error) {
		p.ExternalPlaylistID = id
		p.ExternalPlaylistURL = url
		return true, nil
	})
}

// SetAuthTokens stores the credential pair. An empty refresh token keeps the previous one,
// since refresh responses may omit it.
func (s *Store) SetAuthTokens(access, refresh string) {
	_ = s.mutate(func(st *core.State) (bool, error) {
		st.AccessToken = &access
		if refresh != "" {
			st.RefreshToken = &refresh
		}
		return true, nil
	})
}

// ClearAuthTokens forgets both stored tokens.
func (s *Store) ClearAuthTokens() {
	_ = s.mutate(func(st *core.State) (bool, error) {
		if st.AccessToken == nil && st.RefreshToken == nil {
			return false, nil
		}
		st.AccessToken = nil
		st.RefreshToken = nil
		return true, nil
	})
}

// Tokens returns the stored credential pair; empty strings mean none.
func (s *Store) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.AccessToken != nil {
		access = *s.state.AccessToken
	}
	if s.state.RefreshToken != nil {
		refresh = *s.state.RefreshToken
	}
	return access, refresh
}

// CurrentProject returns a copy of the current project.
func (s *Store) CurrentProject() (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := current(&s.state)
	if err != nil {
		return core.Project{}, err
	}
	return p.Clone(), nil
}

// Project returns a copy of the project with the given id.
func (s *Store) Project(id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := byID(&s.state, id)
	if p == nil {
		return core.Project{}, &core.NotFoundError{Kind: "project", Key: id}
	}
	return p.Clone(), nil
}

// Projects returns copies of every project in order.
func (s *Store) Projects() []core.Project {
	return s.Snapshot().Projects
}

// CurrentIndex is the position of the current project.
func (s *Store) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentProjectIndex
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SetLoading flags a remote call in progress. The flag is never persisted.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Loading = loading
}

// SetError records the last user-facing error; empty clears it.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Error = msg
}

// Status returns the transient loading and error flags.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Store) move(fn func(p *core.Project) bool) (bool, error) {
	var moved bool
	err := s.mutateCurrent(func(p *core.Project) (bool, error) {
		moved = fn(p)
		return moved, nil
	})
	return moved, err
}

func (s *Store) mutateCurrent(fn func(p *core.Project) (bool, error)) error {
	return s.mutate(func(st *core.State) (bool, error) {
		p, err := current(st)
		if err != nil {
			return false, err
		}
		return fn(p)
	})
}

func (s *Store) mutateProject(projectID string, fn func(p *core.Project) (bool, error)) error {
	return s.mutate(func(st *core.State) (bool, error) {
		p := byID(st, projectID)
		if p == nil {
			return false, &core.NotFoundError{Kind: "project", Key: projectID}
		}
		return fn(p)
	})
}

// mutate applies fn under the lock. When fn reports a change the new snapshot is
// persisted before the lock is released, then handed to subscribers.
func (s *Store) mutate(fn func(st *core.State) (bool, error)) error {
	s.mu.Lock()

	changed, err := fn(&s.state)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}

	snapshot := s.state.Clone()
	s.persist(snapshot)

	subscribers := make([]func(core.State), 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subscribers = append(subscribers, sub)
	}
	s.mu.Unlock()

	for _, sub := range subscribers {
		sub(snapshot.Clone())
	}
	return nil
}

func (s *Store) persist(snapshot core.State) {
	if s.persister == nil {
		return
	}

	if err := s.persister.Save(snapshot); err != nil {
		s.logger.Error("Failed to persist state", zap.Error(err))
		if s.persistFailures != nil {
			s.persistFailures.Inc()
		}
	}
}

func addArtist(p *core.Project, name string) (bool, error) {
	if playlist.FindArtist(p, name) >= 0 {
		return false, &core.ValidationError{Field: "artist", Reason: name + " is already in the lineup"}
	}
	p.Artists = append(p.Artists, core.Artist{Name: name, Tracks: []core.Track{}})
	return true, nil
}

func confirm(p *core.Project, name string, profile core.ArtistProfile) (bool, error) {
	i := playlist.FindArtist(p, name)
	if i < 0 {
		return false, &core.NotFoundError{Kind: "artist", Key: name}
	}
	if profile.ID == "" {
		return false, &core.ValidationError{Field: "profile", Reason: "missing artist id"}
	}

	artist := &p.Artists[i]
	artist.Confirmed = true
	artist.ExternalID = profile.ID
	artist.Profile = &profile
	return true, nil
}

func current(st *core.State) (*core.Project, error) {
	i := st.CurrentProjectIndex
	if i < 0 || i >= len(st.Projects) {
		return nil, fmt.Errorf("%w: %w", core.ErrNoProject, &core.NotFoundError{Kind: "project", Key: "current"})
	}
	return &st.Projects[i], nil
}

func byID(st *core.State, id string) *core.Project {
	for i := range st.Projects {
		if st.Projects[i].ID == id {
			return &st.Projects[i]
		}
	}
	return nil
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func trackIDs(tracks []core.Track) []string {
	ids := make([]string, len(tracks))
	for i, track := range tracks {
		ids[i] = track.ID
	}
	return ids
}

func trackCount(p *core.Project) int {
	n := len(p.OrderedTracks)
	for _, a := range p.Artists {
		n += len(a.Tracks)
	}
	return n
}
