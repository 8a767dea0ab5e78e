package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/marquee"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List movies",
	Long:  `List the movies in the library, optionally sorted and filtered by title.`,
	Example: `  marquee list
  marquee list --order asc
  marquee list --order desc --search "the"`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a movie",
	Example: `  marquee add "Heat" --cast "Al Pacino" --cast "Robert De Niro"`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle a movie's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runFavorite,
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a movie",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a movie",
	Long:  `Delete a movie. Its actors stay in the library; see "marquee actors --prune".`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var (
	listSort     string
	listOrder    string
	listSearch   string
	listNoActors bool

	addCast []string
)

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "", "Sort field: title")
	listCmd.Flags().StringVar(&listOrder, "order", "", "Sort direction: asc, desc (default: unordered)")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only titles containing this text")
	listCmd.Flags().BoolVar(&listNoActors, "no-actors", false, "Skip loading casts")

	addCmd.Flags().StringArrayVarP(&addCast, "cast", "c", nil, "Actor name, in billing order (repeatable)")

	rootCmd.AddCommand(listCmd, addCmd, favoriteCmd, renameCmd, rmCmd)
}

// parseSort maps the list flags to a sort field and direction.
func parseSort(field, order string) (marquee.SortField, marquee.Direction, error) {
	var f marquee.SortField
	switch strings.ToLower(field) {
	case "":
		f = marquee.SortNone
	case "title":
		f = marquee.SortTitle
	default:
		return 0, 0, fmt.Errorf("invalid sort field %q: must be 'title'", field)
	}

	var d marquee.Direction
	switch strings.ToLower(order) {
	case "", "none":
		d = marquee.Unordered
	case "asc", "ascending":
		d = marquee.Ascending
	case "desc", "descending":
		d = marquee.Descending
	default:
		return 0, 0, fmt.Errorf("invalid order %q: must be 'asc' or 'desc'", order)
	}
	return f, d, nil
}

func runList(cmd *cobra.Command, args []string) error {
	field, dir, err := parseSort(listSort, listOrder)
	if err != nil {
		return err
	}

	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	spec := marquee.BuildFetchSpec(field, dir, listSearch)
	if listNoActors {
		spec.Prefetch = false
	}
	movies, err := s.Execute(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("list movies: %w", err)
	}
	return outputMovies(cmd, movies)
}

func runAdd(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.InsertMovie(cmd.Context(), args[0], addCast)
	if err != nil {
		return fmt.Errorf("add movie: %w", err)
	}
	return outputMovie(cmd, "Added", m)
}

func runFavorite(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.ToggleFavorite(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("toggle favorite: %w", err)
	}
	verb := "Unfavorited"
	if m.Favorite {
		verb = "Favorited"
	}
	return outputMovie(cmd, verb, m)
}

func runRename(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.RenameMovie(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("rename movie: %w", err)
	}
	return outputMovie(cmd, "Renamed", m)
}

func runRm(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteMovie(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{"deleted": args[0]})
	}
	printSuccess(cmd.OutOrStdout(), "Deleted movie %s", args[0])
	return nil
}
