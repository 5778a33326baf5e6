package cmd

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/atinyakov/GophFill/internal/client"
	"github.com/atinyakov/GophFill/internal/corpus"
	"github.com/atinyakov/GophFill/internal/decrypt"
	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/atinyakov/GophFill/internal/search"
	"github.com/atinyakov/GophFill/internal/service"
	"github.com/spf13/cobra"
)

var fillFlags = struct {
	web    string
	app    string
	state  string
	strict bool
}{}

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Pick an entry for an autofill request interactively",
	Long: "Starts an autofill flow for --web or --app, shows matching entries and reads commands " +
		"from stdin. On selection the chosen entry and the client state are printed as JSON.",
	Args: cobra.NoArgs,
	RunE: runFill,
}

func init() {
	fillCmd.Flags().StringVar(&fillFlags.web, "web", "", "web origin of the form")
	fillCmd.Flags().StringVar(&fillFlags.app, "app", "", "application package of the form")
	fillCmd.Flags().StringVar(&fillFlags.state, "state", "", "opaque client state, base64")
	fillCmd.Flags().BoolVar(&fillFlags.strict, "strict", true, "strict-domain search for web origins when working locally")
}

func runFill(cmd *cobra.Command, _ []string) error {
	state := []byte(fillFlags.state)
	if decoded, err := base64.StdEncoding.DecodeString(fillFlags.state); err == nil {
		state = decoded
	}

	var s session
	dc, err := daemonClient()
	if err != nil {
		return err
	}
	if dc != nil {
		s = &remoteSession{client: dc, origin: client.Origin{Web: fillFlags.web, App: fillFlags.app}, state: state}
	} else {
		local, closeFn, err := openLocalSession(cmd, flow.Request{ClientState: state, WebOrigin: fillFlags.web, AppOrigin: fillFlags.app})
		if err != nil {
			return err
		}
		defer closeFn()
		s = local
	}
	return repl(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
}

func openLocalSession(cmd *cobra.Command, req flow.Request) (session, func(), error) {
	o, err := loadOptions(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("strict") {
		o.StrictWebDefault = fillFlags.strict
	}
	log, err := newLogger(flagValues.logLevel)
	if err != nil {
		return nil, nil, err
	}
	store, err := corpus.NewStore(o.StoreDir)
	if err != nil {
		return nil, nil, err
	}
	repo, err := repository.Open(o.Backend(), o.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	f, err := flow.New(req, flow.Deps{
		Engine:          search.NewEngine(o.Structure(), o.ResultLimit, log),
		Corpus:          store,
		Matches:         service.NewMatchService(repo),
		Decrypter:       decrypt.Checked{Store: store, Log: log},
		StrictByDefault: o.StrictWebDefault,
		Log:             log,
	})
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return newLocalSession(f), func() {
		f.Cancel()
		_ = repo.Close()
	}, nil
}

const fillHelp = `commands:
  <text>              search for text
  /strict on|off      toggle strict-domain search (web origins)
  /select N [clear] [remember]
                      pick result N; clear forgets previous matches, remember stores this one
  /cancel             abort without selecting
  /help               show this help`

// repl runs the interactive loop of a fill session.
func repl(ctx context.Context, s session, in io.Reader, out io.Writer) error {
	st := stylerFor(out)
	v, err := s.Start(ctx)
	if err != nil {
		return err
	}
	renderView(out, st, v)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "gophfill> ")
		if !scanner.Scan() {
			_ = s.Cancel(ctx)
			fmt.Fprintln(out, `{"status":"cancelled"}`)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if v, err = s.SetQuery(ctx, line); err != nil {
				return err
			}
			renderView(out, st, v)
			continue
		}

		args := strings.Fields(line)
		switch args[0] {
		case "/help":
			fmt.Fprintln(out, fillHelp)
		case "/strict":
			if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Fprintln(out, "Usage: /strict on|off")
				continue
			}
			if !v.StrictAvailable {
				fmt.Fprintln(out, "strict search is only available for web origins")
				continue
			}
			if v, err = s.SetStrict(ctx, args[1] == "on"); err != nil {
				return err
			}
			renderView(out, st, v)
		case "/select":
			n, err := selection(args, len(v.Rows))
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			clearPrev, remember := slices.Contains(args[2:], "clear"), slices.Contains(args[2:], "remember")
			done, err := s.Select(ctx, v.Rows[n].Path, clearPrev, remember)
			var apiErr *client.APIError
			status := 0
			if errors.As(err, &apiErr) {
				status = apiErr.Status
			}
			if errors.Is(err, service.ErrStoreWrite) || status == http.StatusServiceUnavailable {
				fmt.Fprintf(out, "could not update remembered matches: %v; try again\n", err)
				continue
			}
			if errors.Is(err, flow.ErrEntryGone) || status == http.StatusGone {
				fmt.Fprintf(out, "%s was removed from the store; pick another entry\n", v.Rows[n].Path)
				continue
			}
			if err != nil {
				return err
			}
			return writeHandoff(out, done)
		case "/cancel":
			if err := s.Cancel(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, `{"status":"cancelled"}`)
			return nil
		default:
			fmt.Fprintln(out, "Unknown command. Type '/help' for a list of commands.")
		}
	}
}

func selection(args []string, rows int) (int, error) {
	if len(args) < 2 {
		return 0, errors.New("usage: /select N [clear] [remember]")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 || n > rows {
		return 0, fmt.Errorf("no result %q", args[1])
	}
	return n - 1, nil
}

// handoff is printed when an entry is selected.
type handoff struct {
	EntryPath      string `json:"entry_path"`
	ClientState    string `json:"client_state"`
	MatchPersisted bool   `json:"match_persisted"`
}

func writeHandoff(out io.Writer, done completion) error {
	return json.NewEncoder(out).Encode(handoff{
		EntryPath:      done.EntryPath,
		ClientState:    base64.StdEncoding.EncodeToString(done.ClientState),
		MatchPersisted: done.MatchPersisted,
	})
}
