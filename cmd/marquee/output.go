package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/marquee"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr.
func outputError(w io.Writer, err error) {
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), err)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err)
}

// outputMovies prints a movie list in the configured format.
func outputMovies(cmd *cobra.Command, movies []marquee.Movie) error {
	if outputJSON {
		return outputAsJSON(cmd, movies)
	}

	out := cmd.OutOrStdout()
	if len(movies) == 0 {
		fmt.Fprintln(out, "No movies found.")
		return nil
	}

	width := 0
	for _, m := range movies {
		if len(m.ID) > width {
			width = len(m.ID)
		}
	}
	for _, m := range movies {
		fmt.Fprintf(out, "%-*s  %s %s\n", width, m.ID, favoriteMark(m.Favorite), m.Title)
		if len(m.Cast) > 0 {
			printMuted(out, "%*s     %s", width, "", strings.Join(m.Cast, ", "))
		}
	}
	return nil
}

// outputMovie prints one movie in the configured format.
func outputMovie(cmd *cobra.Command, verb string, m *marquee.Movie) error {
	if outputJSON {
		return outputAsJSON(cmd, m)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "%s %s", verb, m.Title)
	printField(out, "ID:      ", m.ID)
	printField(out, "Sort key:", m.SortableTitle)
	printField(out, "Favorite:", fmt.Sprintf("%t", m.Favorite))
	if len(m.Cast) > 0 {
		printField(out, "Cast:    ", strings.Join(m.Cast, ", "))
	}
	return nil
}

func favoriteMark(fav bool) string {
	if !fav {
		return " "
	}
	if isTTY() {
		return favoriteStyle.Render(iconFavorite)
	}
	return iconFavorite
}
