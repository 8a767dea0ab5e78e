package marquee

import "fmt"

// SortField is the attribute a fetch orders by.
type SortField int

const (
	// SortNone leaves the field unset.
	SortNone SortField = iota
	// SortTitle orders by the derived sortable title.
	SortTitle
)

func (f SortField) String() string {
	switch f {
	case SortNone:
		return "none"
	case SortTitle:
		return "title"
	default:
		return fmt.Sprintf("SortField(%d)", int(f))
	}
}

// Direction is the sort direction of a fetch.
type Direction int

const (
	// Unordered returns rows in storage order, which is not guaranteed to
	// be stable between calls.
	Unordered Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Unordered:
		return "unordered"
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// FetchSpec declares which movies to read and in what order.
type FetchSpec struct {
	Field     SortField
	Direction Direction
	// Search keeps movies whose title contains it, ignoring case and
	// diacritics. Empty matches everything.
	Search string
	// Prefetch loads each movie's actors with the movie. Ignored by stores
	// that embed the cast.
	Prefetch bool
}

// BuildFetchSpec returns the spec for a sort field, direction and search
// text. A direction without a field sorts by title; a field without a
// direction is unordered. Prefetch is on.
func BuildFetchSpec(field SortField, dir Direction, search string) FetchSpec {
	if dir != Unordered && field == SortNone {
		field = SortTitle
	}
	return FetchSpec{
		Field:     field,
		Direction: dir,
		Search:    search,
		Prefetch:  true,
	}
}

// FetchOption configures NewFetchSpec.
type FetchOption func(*FetchSpec)

// SortedBy orders results by field in dir.
func SortedBy(field SortField, dir Direction) FetchOption {
	return func(s *FetchSpec) {
		s.Field = field
		s.Direction = dir
	}
}

// Matching filters results by title substring.
func Matching(search string) FetchOption {
	return func(s *FetchSpec) { s.Search = search }
}

// WithoutPrefetch skips loading actors.
func WithoutPrefetch() FetchOption {
	return func(s *FetchSpec) { s.Prefetch = false }
}

// NewFetchSpec builds a spec from options. Without options it fetches all
// movies unordered with actors prefetched.
func NewFetchSpec(opts ...FetchOption) FetchSpec {
	s := FetchSpec{Prefetch: true}
	for _, opt := range opts {
		opt(&s)
	}
	return BuildFetchSpec(s.Field, s.Direction, s.Search).withPrefetch(s.Prefetch)
}

func (s FetchSpec) withPrefetch(p bool) FetchSpec {
	s.Prefetch = p
	return s
}

// Ordered reports whether the spec imposes an order.
func (s FetchSpec) Ordered() bool {
	return s.Direction != Unordered
}

// Validate reports out-of-range enum values as *QueryError.
func (s FetchSpec) Validate() error {
	switch s.Field {
	case SortNone, SortTitle:
	default:
		return &QueryError{Op: "validate", Err: fmt.Errorf("unknown sort field %d", int(s.Field))}
	}
	switch s.Direction {
	case Unordered, Ascending, Descending:
	default:
		return &QueryError{Op: "validate", Err: fmt.Errorf("unknown direction %d", int(s.Direction))}
	}
	return nil
}

// relevant reports whether a change to entity can alter the spec's result.
func (s FetchSpec) relevant(c changes) bool {
	if _, ok := c[EntityMovie]; ok {
		return true
	}
	if _, ok := c[EntityMovieActor]; ok {
		return true
	}
	_, ok := c[EntityActor]
	return ok && s.Prefetch
}
