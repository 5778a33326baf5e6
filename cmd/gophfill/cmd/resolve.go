package cmd

import (
	"fmt"
	"io"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve PATH...",
	Short: "Show how store paths are labelled under the configured directory structure",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		return resolvePaths(cmd.OutOrStdout(), o.Structure(), args)
	},
}

func resolvePaths(out io.Writer, structure directory.Structure, paths []string) error {
	st := stylerFor(out)
	for _, p := range paths {
		label, err := structure.Resolve(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		r := row{Path: p, Breadcrumb: label.Breadcrumb(), Title: label.Title()}
		r.Identifier, _ = label.Identifier()
		r.Account, _ = label.Account()
		r.Subtitle, _ = label.Subtitle()

		line := fmt.Sprintf("%s\t%s", p, st.title(r))
		if r.Subtitle != "" {
			line += "  " + st.wrap(ansiDim, r.Subtitle)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
