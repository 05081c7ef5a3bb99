// Package playlist maintains a project's aggregated track order: duplicate detection by
// track id, cascading removal and positional reordering.
//
// All functions mutate the given project in place and are not safe for concurrent use;
// callers serialise access (see internal/store).
package playlist

import (
	"setlist/internal/core"
	"setlist/pkg/fuzzy"
)

// FindArtist returns the index of the artist whose name matches case-insensitively, or -1.
func FindArtist(p *core.Project, name string) int {
	want := fuzzy.Key(name)
	for i := range p.Artists {
		if fuzzy.Key(p.Artists[i].Name) == want {
			return i
		}
	}
	return -1
}

// AddTracks attaches candidates to the named artist and appends the ones not already in
// the aggregate. A candidate whose id is already aggregated is returned flagged as a
// duplicate and only kept on the artist's own list. Every processed candidate is
// returned so callers can report counts.
func AddTracks(p *core.Project, artistName string, candidates []core.Track) ([]core.Track, error) {
	i := FindArtist(p, artistName)
	if i < 0 {
		return nil, &core.NotFoundError{Kind: "artist", Key: artistName}
	}

	artist := &p.Artists[i]
	if !artist.Confirmed {
		return nil, &core.ValidationError{Field: "artist", Reason: artistName + " is not confirmed"}
	}

	aggregate := newTrackIndex(p.OrderedTracks, len(candidates))
	own := newTrackIndex(artist.Tracks, len(candidates))

	processed := make([]core.Track, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == "" {
			continue
		}

		candidate.Duplicate = aggregate.Has(candidate.ID)

		// Already attached to this artist: report it, don't attach twice.
		if own.Has(candidate.ID) {
			candidate.Duplicate = true
			processed = append(processed, candidate)
			continue
		}

		artist.Tracks = append(artist.Tracks, candidate)
		own.Add(candidate.ID)

		if !candidate.Duplicate {
			p.OrderedTracks = append(p.OrderedTracks, candidate)
			aggregate.Add(candidate.ID)
		}
		processed = append(processed, candidate)
	}

	return processed, nil
}

// RemoveTrack removes the track from the aggregate and from every artist. It reports
// whether anything was removed; an unknown id is a no-op.
func RemoveTrack(p *core.Project, trackID string) bool {
	removed := false

	if kept, ok := without(p.OrderedTracks, trackID); ok {
		p.OrderedTracks = kept
		removed = true
	}

	for i := range p.Artists {
		if kept, ok := without(p.Artists[i].Tracks, trackID); ok {
			p.Artists[i].Tracks = kept
			removed = true
		}
	}

	return removed
}

// RemoveArtistTracks clears the artist's tracks and cascades them out of the aggregate.
// Tracks another artist still carries stay aggregated and that artist's copy stops
// being flagged as a duplicate.
func RemoveArtistTracks(p *core.Project, artistIndex int) {
	if artistIndex < 0 || artistIndex >= len(p.Artists) {
		return
	}

	removed := p.Artists[artistIndex].Tracks
	p.Artists[artistIndex].Tracks = nil

	aggregate := newTrackIndex(p.OrderedTracks, 0)
	for _, track := range removed {
		if !aggregate.Has(track.ID) {
			continue
		}

		owner := firstOwner(p, track.ID)
		if owner == nil {
			p.OrderedTracks, _ = without(p.OrderedTracks, track.ID)
			aggregate.Remove(track.ID)
			continue
		}
		owner.Duplicate = false
	}
}

// MoveTrack moves the aggregate entry at from to position to. It reports whether the
// order changed; out-of-range indices are a no-op.
func MoveTrack(p *core.Project, from, to int) bool {
	n := len(p.OrderedTracks)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}

	track := p.OrderedTracks[from]
	if from < to {
		copy(p.OrderedTracks[from:to], p.OrderedTracks[from+1:to+1])
	} else {
		copy(p.OrderedTracks[to+1:from+1], p.OrderedTracks[to:from])
	}
	p.OrderedTracks[to] = track

	return true
}

// MoveUp nudges the track at index one position towards the start.
func MoveUp(p *core.Project, index int) bool {
	return MoveTrack(p, index, index-1)
}

// MoveDown nudges the track at index one position towards the end.
func MoveDown(p *core.Project, index int) bool {
	return MoveTrack(p, index, index+1)
}

// ReorderByIDs replaces the aggregate with the tracks named by orderedIDs, in that
// order. Ids unknown to the project and repeated ids are ignored; aggregated tracks
// missing from orderedIDs are dropped. It returns the new length.
func ReorderByIDs(p *core.Project, orderedIDs []string) int {
	known := make(map[string]core.Track, len(p.OrderedTracks))
	for _, artist := range p.Artists {
		if !artist.Confirmed {
			continue
		}
		for _, track := range artist.Tracks {
			if _, ok := known[track.ID]; !ok {
				track.Duplicate = false
				known[track.ID] = track
			}
		}
	}
	for _, track := range p.OrderedTracks {
		known[track.ID] = track
	}

	placed := newTrackIndex(nil, len(orderedIDs))
	reordered := make([]core.Track, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		track, ok := known[id]
		if !ok || placed.Has(id) {
			continue
		}
		placed.Add(id)
		reordered = append(reordered, track)
	}

	p.OrderedTracks = reordered
	return len(reordered)
}

// DuplicatesOf reports every id that occurs more than once in tracks.
func DuplicatesOf(tracks []core.Track) map[string]struct{} {
	counts := make(map[string]int, len(tracks))
	duplicates := make(map[string]struct{})

	for _, track := range tracks {
		counts[track.ID]++
		if counts[track.ID] > 1 {
			duplicates[track.ID] = struct{}{}
		}
	}

	return duplicates
}

// SessionDuplicates reports ids carried by more than one confirmed artist.
func SessionDuplicates(p *core.Project) map[string]struct{} {
	return DuplicatesOf(AllTracks(p))
}

// AllTracks concatenates the raw track lists of all confirmed artists.
func AllTracks(p *core.Project) []core.Track {
	var all []core.Track
	for _, artist := range p.Artists {
		if artist.Confirmed {
			all = append(all, artist.Tracks...)
		}
	}
	return all
}

// OrderedTracks returns the aggregate restricted to tracks a confirmed artist still carries.
func OrderedTracks(p *core.Project) []core.Track {
	carried := newTrackIndex(AllTracks(p), 0)

	ordered := make([]core.Track, 0, len(p.OrderedTracks))
	for _, track := range p.OrderedTracks {
		if carried.Has(track.ID) {
			ordered = append(ordered, track)
		}
	}
	return ordered
}

// URIs returns the playable references of tracks in order, skipping empty ones.
func URIs(tracks []core.Track) []string {
	uris := make([]string, 0, len(tracks))
	for _, track := range tracks {
		if track.URI != "" {
			uris = append(uris, track.URI)
		}
	}
	return uris
}

func without(tracks []core.Track, trackID string) ([]core.Track, bool) {
	kept := tracks[:0]
	removed := false
	for _, track := range tracks {
		if track.ID == trackID {
			removed = true
			continue
		}
		kept = append(kept, track)
	}
	return kept, removed
}

func firstOwner(p *core.Project, trackID string) *core.Track {
	for i := range p.Artists {
		for j := range p.Artists[i].Tracks {
			if p.Artists[i].Tracks[j].ID == trackID {
				return &p.Artists[i].Tracks[j]
			}
		}
	}
	return nil
}
