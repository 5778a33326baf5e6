package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/GophFill/internal/client"
	"github.com/atinyakov/GophFill/internal/db"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/atinyakov/GophFill/internal/service"
	"github.com/spf13/cobra"
)

var matchFlags = struct {
	web string
	app string
}{}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Inspect and manage remembered origin matches",
}

var matchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered entries for --web or --app, or every match when neither is set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		all := matchFlags.web == "" && matchFlags.app == ""

		dc, err := daemonClient()
		if err != nil {
			return err
		}
		if dc != nil {
			if all {
				return fmt.Errorf("listing every match requires local access; pass --web or --app")
			}
			paths, err := dc.Matches(cmd.Context(), client.Origin{Web: matchFlags.web, App: matchFlags.app})
			if err != nil {
				return err
			}
			printPaths(out, paths)
			return nil
		}

		repo, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		if all {
			matches, err := repo.Matches(cmd.Context())
			if err != nil {
				return err
			}
			printMatches(out, matches)
			return nil
		}
		origin, err := models.OriginFromExtras(matchFlags.web, matchFlags.app)
		if err != nil {
			return err
		}
		paths, err := service.NewMatchService(repo).MatchesFor(cmd.Context(), origin)
		if err != nil {
			return err
		}
		printPaths(out, paths)
		return nil
	},
}

var matchesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every remembered entry for --web or --app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dc, err := daemonClient()
		if err != nil {
			return err
		}
		if dc != nil {
			return dc.ClearMatches(cmd.Context(), client.Origin{Web: matchFlags.web, App: matchFlags.app})
		}

		origin, err := models.OriginFromExtras(matchFlags.web, matchFlags.app)
		if err != nil {
			return err
		}
		repo, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := service.NewMatchService(repo).ClearMatches(cmd.Context(), origin); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared matches for %s\n", origin.Key())
		return nil
	},
}

var matchesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove matches whose entry no longer exists in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		o, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		repo, err := repository.Open(o.Backend(), o.DatabaseDSN)
		if err != nil {
			return err
		}
		defer repo.Close()
		removed, err := db.PruneStaleMatches(cmd.Context(), repo, o.StoreDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale matches\n", removed)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{matchesListCmd, matchesClearCmd} {
		c.Flags().StringVar(&matchFlags.web, "web", "", "web origin")
		c.Flags().StringVar(&matchFlags.app, "app", "", "application package")
	}
	matchesCmd.AddCommand(matchesListCmd, matchesClearCmd, matchesPruneCmd)
}

func openRepository(cmd *cobra.Command) (repository.MatchRepository, error) {
	o, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	return repository.Open(o.Backend(), o.DatabaseDSN)
}

func printPaths(out io.Writer, paths []string) {
	if len(paths) == 0 {
		fmt.Fprintln(out, "no remembered entries")
		return
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
}

func printMatches(out io.Writer, matches []models.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(out, "no remembered entries")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORIGIN\tENTRY\tREMEMBERED")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.OriginKey, m.EntryPath, m.CreatedAt.Local().Format(time.DateTime))
	}
	_ = w.Flush()
}
