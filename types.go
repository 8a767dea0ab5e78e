package marquee

// Movie is one film in the library.
type Movie struct {
	// ID is a UUID in embedded-cast stores and the decimal surrogate key in
	// relational stores.
	ID            string `json:"id"`
	Title         string `json:"title"`
	SortableTitle string `json:"sortable_title"`
	Favorite      bool   `json:"favorite"`
	// Cast lists actor names in billing order. It is always set for
	// embedded-cast stores and for relational fetches with prefetch.
	Cast []string `json:"cast"`
	// Actors is the prefetched relationship of a relational store.
	Actors []Actor `json:"actors,omitempty"`
}

// Actor is a performer in a relational store.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// Movies is the inverse side of the cast relationship. It is populated
	// by Store.Actor; its movies carry no cast.
	Movies []Movie `json:"movies,omitempty"`
}

// Stats summarizes a library.
type Stats struct {
	Movies        int    `json:"movies"`
	Favorites     int    `json:"favorites"`
	Actors        int    `json:"actors"`
	Links         int    `json:"links"`
	SchemaVersion string `json:"schema_version"`
	Relational    bool   `json:"relational"`
}

// MaxTitleLength bounds movie titles in bytes.
const MaxTitleLength = 1000

// MaxNameLength bounds actor names in bytes.
const MaxNameLength = 300

// Entity names carried by change notifications.
const (
	EntityMovie      = "Movie"
	EntityActor      = "Actor"
	EntityMovieActor = "MovieActor"
)
