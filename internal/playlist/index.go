package playlist

import (
	"github.com/bits-and-blooms/bloom/v3"

	"setlist/internal/core"
)

// indexFalsePositiveRate bounds how often Has falls through to the exact set.
const indexFalsePositiveRate = 0.001

// trackIndex answers "is this id already present" for one mutation.
// A bloom filter screens misses before the exact set is consulted.
type trackIndex struct {
	ids   map[string]struct{}
	bloom *bloom.BloomFilter
}

// newTrackIndex builds an index over tracks with room for extra ids.
func newTrackIndex(tracks []core.Track, extra int) *trackIndex {
	capacity := len(tracks) + extra
	if capacity < 1 {
		capacity = 1
	}

	ix := &trackIndex{
		ids:   make(map[string]struct{}, capacity),
		bloom: bloom.NewWithEstimates(uint(capacity), indexFalsePositiveRate),
	}
	for i := range tracks {
		ix.Add(tracks[i].ID)
	}
	return ix
}

// Has checks if a track ID is in the index.
func (ix *trackIndex) Has(trackID string) bool {
	if !ix.bloom.TestString(trackID) {
		return false
	}

	_, exists := ix.ids[trackID]
	return exists
}

// Add adds a track ID to the index.
func (ix *trackIndex) Add(trackID string) {
	if trackID == "" {
		return
	}
	if _, exists := ix.ids[trackID]; exists {
		return
	}

	ix.ids[trackID] = struct{}{}
	ix.bloom.AddString(trackID)
}

// Remove drops a track ID. The bloom filter keeps its bits; the exact set decides.
func (ix *trackIndex) Remove(trackID string) {
	delete(ix.ids, trackID)
}

// Size returns the number of track IDs currently indexed.
func (ix *trackIndex) Size() int {
	return len(ix.ids)
}
