package feature

import (
	"github.com/golang/geo/r2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Observation is a single feature observation in an image frame
type Observation struct {
	// ID is feature track id
	ID int
	// Point is the observed point in pixel coordinates, not normalized
	// image coordinates
	Point r2.Point
}

// Record tracks a feature across consecutive frames of the sliding window
type Record struct {
	// ID is feature track id
	ID int
	// Start is the window index of the frame the feature was first seen in
	Start int
	// Points are the feature observations, one per frame starting at Start
	Points []r2.Point
	// Used is set once the feature was consumed by the filter
	Used bool
	// Lost is set once the feature is no longer observed
	Lost bool
}

// End returns window index of the last frame the feature was observed in.
func (r *Record) End() int {
	return r.Start + len(r.Points) - 1
}

// Covers returns true if the feature was observed in frame.
func (r *Record) Covers(frame int) bool {
	return frame >= r.Start && frame <= r.End()
}

// Merge summarizes merged observations
type Merge struct {
	// Added is the number of new feature records
	Added int
	// Appended is the number of observations appended to existing records
	Appended int
	// Ignored is the number of observations of already consumed features
	Ignored int
}

// Store maps feature ids to their records
type Store struct {
	records map[int]*Record
}

// NewStore creates new empty Store and returns it.
func NewStore() *Store {
	return &Store{
		records: make(map[int]*Record),
	}
}

// Len returns the number of feature records.
func (s *Store) Len() int {
	return len(s.records)
}

// Get returns feature record with the given id.
func (s *Store) Get(id int) (*Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// IDs returns sorted ids of all records.
func (s *Store) IDs() []int {
	ids := maps.Keys(s.records)
	slices.Sort(ids)

	return ids
}

// Observe merges observations made in frame into the store.
// Unseen features create new records anchored at frame, known features
// have the observation appended and are no longer lost.
// Observations of features already consumed by the filter are ignored.
func (s *Store) Observe(frame int, obs []Observation) Merge {
	var m Merge
	for _, o := range obs {
		r, ok := s.records[o.ID]
		if !ok {
			s.records[o.ID] = &Record{
				ID:     o.ID,
				Start:  frame,
				Points: []r2.Point{o.Point},
			}
			m.Added++
			continue
		}

		if r.Used || r.End() >= frame {
			m.Ignored++
			continue
		}

		r.Points = append(r.Points, o.Point)
		r.Lost = false
		m.Appended++
	}

	return m
}

// MarkLost marks every record not consumed by the filter as lost.
// It returns the number of records marked.
func (s *Store) MarkLost() int {
	n := 0
	for _, r := range s.records {
		if !r.Used {
			r.Lost = true
			n++
		}
	}

	return n
}

// Candidates returns lost records not yet consumed by the filter in id order.
func (s *Store) Candidates() []*Record {
	var recs []*Record
	for _, id := range s.IDs() {
		r := s.records[id]
		if r.Lost && !r.Used {
			recs = append(recs, r)
		}
	}

	return recs
}

// Consumed returns true if frame is observed by at least one feature
// and all the features observed in it have been consumed by the filter.
func (s *Store) Consumed(frame int) bool {
	n := 0
	for _, r := range s.records {
		if !r.Covers(frame) {
			continue
		}

		if !r.Used {
			return false
		}
		n++
	}

	return n > 0
}

// DropFrame removes observations made in frame from every record and shifts
// records starting after frame one frame back. Records left with no observations
// are evicted. It returns the number of evicted records.
func (s *Store) DropFrame(frame int) int {
	evicted := 0
	for id, r := range s.records {
		switch {
		case r.Start > frame:
			r.Start--
		case r.Covers(frame):
			r.Points = slices.Delete(r.Points, frame-r.Start, frame-r.Start+1)
		}

		if len(r.Points) == 0 {
			delete(s.records, id)
			evicted++
		}
	}

	return evicted
}
