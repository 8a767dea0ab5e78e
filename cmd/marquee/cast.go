package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Edit a movie's cast",
}

var castAddCmd = &cobra.Command{
	Use:     "add <movie-id> <name>",
	Short:   "Add an actor to a movie",
	Example: `  marquee cast add 3 "Alain Delon"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runCastAdd,
}

var castRmCmd = &cobra.Command{
	Use:   "rm <movie-id> <name>",
	Short: "Remove an actor from a movie",
	Args:  cobra.ExactArgs(2),
	RunE:  runCastRm,
}

var actorsCmd = &cobra.Command{
	Use:   "actors [id]",
	Short: "List actors, or show one actor's movies",
	Long: `List the actors in a library that stores actors as entities.

With an ID, show that actor and the movies they appear in. With --prune,
delete actors that no longer appear in any movie.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActors,
}

var actorsPrune bool

func init() {
	actorsCmd.Flags().BoolVar(&actorsPrune, "prune", false, "Delete actors without movies")

	castCmd.AddCommand(castAddCmd, castRmCmd)
	rootCmd.AddCommand(castCmd, actorsCmd)
}

func runCastAdd(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.AddActor(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("add actor: %w", err)
	}
	return outputMovie(cmd, "Updated", m)
}

func runCastRm(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.RemoveActor(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("remove actor: %w", err)
	}
	return outputMovie(cmd, "Updated", m)
}

func runActors(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if actorsPrune {
		n, err := s.PruneActors(ctx)
		if err != nil {
			return fmt.Errorf("prune actors: %w", err)
		}
		if outputJSON {
			return outputAsJSON(cmd, map[string]int{"pruned": n})
		}
		printSuccess(out, "Pruned %d actor(s)", n)
		return nil
	}

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid actor id %q", args[0])
		}
		a, err := s.Actor(ctx, id)
		if err != nil {
			return fmt.Errorf("get actor: %w", err)
		}
		if outputJSON {
			return outputAsJSON(cmd, a)
		}
		printInfo(out, "%s", a.Name)
		return outputMovies(cmd, a.Movies)
	}

	actors, err := s.Actors(ctx)
	if err != nil {
		return fmt.Errorf("list actors: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, actors)
	}
	if len(actors) == 0 {
		fmt.Fprintln(out, "No actors found.")
		return nil
	}
	for _, a := range actors {
		fmt.Fprintf(out, "%6d  %s\n", a.ID, a.Name)
	}
	return nil
}
