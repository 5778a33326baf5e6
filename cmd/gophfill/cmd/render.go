package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiBoldUnderline = "\x1b[1;4m"
	ansiDim           = "\x1b[2m"
	ansiReset         = "\x1b[0m"
)

// styler decorates text when writing to a terminal.
type styler struct{ color bool }

func stylerFor(w io.Writer) styler {
	f, ok := w.(*os.File)
	return styler{color: ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))}
}

func (s styler) wrap(code, text string) string {
	if !s.color || text == "" {
		return text
	}
	return code + text + ansiReset
}

// title renders the breadcrumb plainly and the identifier bold and underlined. Labels
// without an identifier show the account as the title.
func (s styler) title(r row) string {
	if r.Identifier == "" {
		return r.Title
	}
	var b strings.Builder
	if r.Breadcrumb != "" {
		b.WriteString(r.Breadcrumb)
		b.WriteString("/")
	}
	b.WriteString(s.wrap(ansiBoldUnderline, r.Identifier))
	return b.String()
}

func renderView(w io.Writer, s styler, v view) {
	mode := "fuzzy"
	if v.Strict {
		mode = "strict"
	}
	fmt.Fprintf(w, "query %q (%s)\n", v.Query, mode)
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "  no matching entries")
		return
	}
	for i, r := range v.Rows {
		line := fmt.Sprintf("%3d  %s", i+1, s.title(r))
		if r.Subtitle != "" {
			line += "  " + s.wrap(ansiDim, r.Subtitle)
		}
		fmt.Fprintln(w, line)
	}
}
