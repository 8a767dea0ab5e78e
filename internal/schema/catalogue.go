package schema

import "github.com/hyperengineering/marquee/internal/sortkey"

// Entity names. EntityMovieActor names the association itself so change
// notifications can distinguish link edits from row edits.
const (
	EntityMovie      = "Movie"
	EntityActor      = "Actor"
	EntityMovieActor = "MovieActor"
)

// Tables and columns shared by the generations.
const (
	TableMovies      = "movies"
	TableActors      = "actors"
	TableMovieActors = "movie_actors"

	ColumnID            = "id"
	ColumnTitle         = "title"
	ColumnSortableTitle = "sortable_title"
	ColumnFavorite      = "favorite"
	ColumnCastNames     = "cast_names"
	ColumnName          = "name"
	ColumnMovieID       = "movie_id"
	ColumnActorID       = "actor_id"
	ColumnPosition      = "position"

	RelationshipActors = "actors"
	RelationshipMovies = "movies"
)

// Versions of the shipped generations.
var (
	V1_0_0 = Version{Major: 1}
	V1_1_0 = Version{Major: 1, Minor: 1}
	V2_0_0 = Version{Major: 2}
	V3_0_0 = Version{Major: 3}
	V3_1_0 = Version{Major: 3, Minor: 1}
)

// Empty is the model of a store that has never been migrated.
func Empty() Model { return Model{} }

// Catalogue returns every shipped generation in ascending order.
func Catalogue() []Model {
	return []Model{Gen1(), Gen2(), Gen3(), Gen4(), Gen5()}
}

// Latest returns the newest shipped generation.
func Latest() Model {
	c := Catalogue()
	return c[len(c)-1]
}

// Lookup returns the shipped generation with version v.
func Lookup(v Version) (Model, bool) {
	for _, m := range Catalogue() {
		if m.Version == v {
			return m, true
		}
	}
	return Model{}, false
}

// Gen1 (1.0.0): movies keyed by UUID with the cast embedded as a name list.
func Gen1() Model {
	return Model{
		Version: V1_0_0,
		Entities: []Entity{{
			Name:     EntityMovie,
			Table:    TableMovies,
			Identity: IdentityUUID,
			Attributes: []Attribute{
				{Name: ColumnTitle, Type: TypeText},
				{Name: ColumnCastNames, Type: TypeStringList, Default: "'[]'"},
			},
		}},
	}
}

// Gen2 (1.1.0) adds the favorite flag.
func Gen2() Model {
	return Model{
		Version: V1_1_0,
		Entities: []Entity{{
			Name:     EntityMovie,
			Table:    TableMovies,
			Identity: IdentityUUID,
			Attributes: []Attribute{
				{Name: ColumnTitle, Type: TypeText, Stable: true},
				{Name: ColumnCastNames, Type: TypeStringList, Default: "'[]'", Stable: true},
				{Name: ColumnFavorite, Type: TypeBoolean, Default: "0"},
			},
		}},
	}
}

// Gen3 (2.0.0) adds the cached sortable title.
func Gen3() Model {
	return Model{
		Version: V2_0_0,
		Entities: []Entity{{
			Name:     EntityMovie,
			Table:    TableMovies,
			Identity: IdentityUUID,
			Attributes: []Attribute{
				{Name: ColumnTitle, Type: TypeText, Stable: true},
				{Name: ColumnCastNames, Type: TypeStringList, Default: "'[]'", Stable: true},
				{Name: ColumnFavorite, Type: TypeBoolean, Default: "0", Stable: true},
				{Name: ColumnSortableTitle, Type: TypeText, Default: "''"},
			},
		}},
		Articles: sortkey.Articles1,
	}
}

// Gen4 (3.0.0) makes actors first-class entities linked through a join table
// and switches movies to store-assigned keys.
func Gen4() Model {
	return relationalModel(V3_0_0, false)
}

// Gen5 (3.1.0) indexes the sortable title.
func Gen5() Model {
	m := relationalModel(V3_1_0, true)
	for i := range m.Entities {
		for j := range m.Entities[i].Attributes {
			m.Entities[i].Attributes[j].Stable = true
		}
	}
	return m
}

func relationalModel(v Version, indexed bool) Model {
	join := JoinTable{
		Name:         TableMovieActors,
		SourceColumn: ColumnMovieID,
		TargetColumn: ColumnActorID,
		OrderColumn:  ColumnPosition,
	}
	inverse := JoinTable{
		Name:         TableMovieActors,
		SourceColumn: ColumnActorID,
		TargetColumn: ColumnMovieID,
	}
	return Model{
		Version: v,
		Entities: []Entity{
			{
				Name:     EntityMovie,
				Table:    TableMovies,
				Identity: IdentitySurrogate,
				Attributes: []Attribute{
					{Name: ColumnTitle, Type: TypeText},
					{Name: ColumnSortableTitle, Type: TypeText, Default: "''", Indexed: indexed},
					{Name: ColumnFavorite, Type: TypeBoolean, Default: "0"},
				},
				Relationships: []Relationship{{
					Name:        RelationshipActors,
					Target:      EntityActor,
					Inverse:     RelationshipMovies,
					Cardinality: ManyToMany,
					Join:        join,
					Owner:       true,
				}},
			},
			{
				Name:     EntityActor,
				Table:    TableActors,
				Identity: IdentitySurrogate,
				Attributes: []Attribute{
					{Name: ColumnName, Type: TypeText, Unique: true, Indexed: indexed},
				},
				Relationships: []Relationship{{
					Name:        RelationshipMovies,
					Target:      EntityMovie,
					Inverse:     RelationshipActors,
					Cardinality: ManyToMany,
					Join:        inverse,
				}},
			},
		},
		Articles: sortkey.Articles2,
	}
}
