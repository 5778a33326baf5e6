package cmd

import (
	"cmp"
	"fmt"
	"os"

	"github.com/atinyakov/GophFill/internal/client"
	"github.com/atinyakov/GophFill/internal/config"
	"github.com/atinyakov/GophFill/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

var flagValues = struct {
	config    string
	store     string
	structure string
	backend   string
	dsn       string
	url       string
	cert      string
	key       string
	ca        string
	logLevel  string
}{}

var rootCmd = &cobra.Command{
	Use:           "gophfill",
	Short:         "GophFill: autofill matching for a pass-style password store",
	Long:          "Search the password store for autofill requests, manage remembered matches and provision daemon certificates.",
	Version:       fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A")),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagValues.config, "config", "c", "", "path to config file")
	pf.StringVar(&flagValues.store, "store", "", "password store directory")
	pf.StringVar(&flagValues.structure, "structure", "", "directory structure convention")
	pf.StringVar(&flagValues.backend, "backend", "", "match backend (sqlite, bolt, postgres, memory)")
	pf.StringVarP(&flagValues.dsn, "db", "d", "", "match database DSN or file")
	pf.StringVar(&flagValues.url, "url", "", "daemon base URL; work locally when empty")
	pf.StringVar(&flagValues.cert, "cert", "", "client certificate for the daemon")
	pf.StringVar(&flagValues.key, "key", "", "client key for the daemon")
	pf.StringVar(&flagValues.ca, "ca", "", "CA certificate of the daemon")
	pf.StringVar(&flagValues.logLevel, "log-level", "", "log level")

	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(certsCmd)
}

// loadOptions merges defaults, the config file, the environment and explicitly set flags.
func loadOptions(cmd *cobra.Command) (*config.Options, error) {
	o := config.NewOptions()
	path := cmp.Or(flagValues.config, os.Getenv("CONFIG"))
	if err := o.LoadFile(path); err != nil {
		return nil, err
	}
	if err := o.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("store", &o.StoreDir, flagValues.store)
	set("structure", &o.DirectoryStructure, flagValues.structure)
	set("backend", &o.MatchBackend, flagValues.backend)
	set("db", &o.DatabaseDSN, flagValues.dsn)
	set("log-level", &o.LogLevel, flagValues.logLevel)

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// newLogger logs to stderr so stdout stays free for results and handoffs.
func newLogger(level string) (*zap.Logger, error) {
	l := logger.New()
	if level == "" {
		return l.Log, nil
	}
	if err := l.Init(level); err != nil {
		return nil, err
	}
	return l.Log, nil
}

// daemonClient returns nil when no daemon URL is configured.
func daemonClient() (*client.Client, error) {
	if flagValues.url == "" {
		return nil, nil
	}
	if flagValues.cert == "" {
		return client.New(flagValues.url, nil), nil
	}
	httpClient, err := client.LoadClientCertificate(flagValues.cert, flagValues.key, flagValues.ca)
	if err != nil {
		return nil, err
	}
	return client.New(flagValues.url, httpClient), nil
}
