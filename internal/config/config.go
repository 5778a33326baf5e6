// Package config provides functionality for managing configuration options
// for the daemon and CLI using a JSON config file, command-line flags and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/atinyakov/GophFill/internal/search"
)

// Duration is a time.Duration read from JSON as a string such as "1h30m".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the daemon's listening address (ip:port).
	Addr string `json:"address"`

	// DatabaseDSN is the PostgreSQL connection string, or the database file for the
	// sqlite and bolt backends. Empty selects a file under the user config directory.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// StoreDir is the root of the password store.
	StoreDir string `json:"store_dir"`

	// DirectoryStructure names the convention entry paths follow.
	DirectoryStructure string `json:"directory_structure"`

	// MatchBackend selects the match repository: sqlite, bolt, postgres or memory.
	MatchBackend string `json:"match_backend"`

	// ResultLimit caps the results of one search.
	ResultLimit int `json:"result_limit"`

	// StrictWebDefault starts web requests in strict-domain mode.
	StrictWebDefault bool `json:"strict_web_default"`

	// TLS material. With CertFile and KeyFile set the daemon serves HTTPS; with CAFile
	// as well it requires client certificates.
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`

	// AllowedBridges restricts client certificates to these Common Names; empty admits
	// every bridge signed by CAFile.
	AllowedBridges []string `json:"allowed_bridges"`

	LogLevel string `json:"log_level"`

	// PruneInterval is how often matches of deleted entries are removed; 0 disables it.
	PruneInterval Duration `json:"prune_interval"`

	// FlowIdleTimeout cancels flows without client activity.
	FlowIdleTimeout Duration `json:"flow_idle_timeout"`
}

// NewOptions returns Options populated with defaults.
func NewOptions() *Options {
	return &Options{
		Addr:               "localhost:8080",
		Config:             "config.json",
		StoreDir:           defaultStoreDir(),
		DirectoryStructure: directory.FileBased.String(),
		MatchBackend:       string(repository.BackendSQLite),
		ResultLimit:        search.DefaultLimit,
		StrictWebDefault:   true,
		LogLevel:           "info",
		PruneInterval:      Duration(time.Hour),
		FlowIdleTimeout:    Duration(5 * time.Minute),
	}
}

func defaultStoreDir() string {
	if dir := os.Getenv("PASSWORD_STORE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".password-store"
	}
	return filepath.Join(home, ".password-store")
}

// RegisterFlags binds the options to fs.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.Addr, "a", o.Addr, "run on ip:port server")
	fs.StringVar(&o.DatabaseDSN, "d", o.DatabaseDSN, "match database DSN or file")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
	fs.StringVar(&o.StoreDir, "store", o.StoreDir, "password store directory")
	fs.StringVar(&o.DirectoryStructure, "structure", o.DirectoryStructure, "directory structure convention")
	fs.StringVar(&o.MatchBackend, "backend", o.MatchBackend, "match backend (sqlite, bolt, postgres, memory)")
	fs.IntVar(&o.ResultLimit, "limit", o.ResultLimit, "maximum results per search")
	fs.BoolVar(&o.StrictWebDefault, "strict", o.StrictWebDefault, "strict-domain search for web origins by default")
	fs.StringVar(&o.CertFile, "tls-cert", o.CertFile, "server TLS certificate")
	fs.StringVar(&o.KeyFile, "tls-key", o.KeyFile, "server TLS key")
	fs.StringVar(&o.CAFile, "tls-ca", o.CAFile, "CA for client certificates")
	fs.Var(listFlag{&o.AllowedBridges}, "tls-bridges", "comma-separated client certificate names to admit")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.Var(durationFlag{&o.PruneInterval}, "prune-interval", "stale match pruning interval (0 disables)")
	fs.Var(durationFlag{&o.FlowIdleTimeout}, "flow-idle", "idle timeout of autofill flows")
}

type durationFlag struct{ d *Duration }

func (f durationFlag) String() string {
	if f.d == nil {
		return ""
	}
	return time.Duration(*f.d).String()
}

func (f durationFlag) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*f.d = Duration(v)
	return nil
}

type listFlag struct{ items *[]string }

func (f listFlag) String() string {
	if f.items == nil {
		return ""
	}
	return strings.Join(*f.items, ",")
}

func (f listFlag) Set(s string) error {
	*f.items = splitList(s)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load fills the options from, in increasing precedence, the config file, the
// command-line flags in args and the environment, then validates them.
func (o *Options) Load(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}
	if err := o.LoadFile(o.Config); err != nil {
		return err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("reapply flag %s: %w", name, err)
		}
	}
	if err := o.ApplyEnv(); err != nil {
		return err
	}
	return o.Validate()
}

// LoadFile merges a JSON config file into the options. A missing file is not an error.
func (o *Options) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides options with environment variables if set.
func (o *Options) ApplyEnv() error {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		o.Addr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		o.DatabaseDSN = v
	}
	if v := os.Getenv("PASSWORD_STORE_DIR"); v != "" {
		o.StoreDir = v
	}
	if v := os.Getenv("AUTOFILL_DIRECTORY_STRUCTURE"); v != "" {
		o.DirectoryStructure = v
	}
	if v := os.Getenv("MATCH_BACKEND"); v != "" {
		o.MatchBackend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
	if v := os.Getenv("AUTOFILL_BRIDGES"); v != "" {
		o.AllowedBridges = splitList(v)
	}
	if v := os.Getenv("AUTOFILL_STRICT_WEB"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTOFILL_STRICT_WEB: %w", err)
		}
		o.StrictWebDefault = b
	}
	return nil
}

// Validate checks the option values and fills derived defaults.
func (o *Options) Validate() error {
	var errs []error
	if _, err := directory.ParseStructure(o.DirectoryStructure); err != nil {
		errs = append(errs, err)
	}
	backend, err := repository.ParseBackend(o.MatchBackend)
	if err != nil {
		errs = append(errs, err)
	}
	if o.ResultLimit < 1 || o.ResultLimit > search.MaxLimit {
		errs = append(errs, fmt.Errorf("result limit %d outside 1..%d", o.ResultLimit, search.MaxLimit))
	}
	if strings.TrimSpace(o.StoreDir) == "" {
		errs = append(errs, errors.New("password store directory is not set"))
	}
	if (o.CertFile == "") != (o.KeyFile == "") {
		errs = append(errs, errors.New("tls-cert and tls-key must be set together"))
	}
	if o.CAFile != "" && o.CertFile == "" {
		errs = append(errs, errors.New("tls-ca requires tls-cert and tls-key"))
	}
	if len(o.AllowedBridges) > 0 && o.CAFile == "" {
		errs = append(errs, errors.New("tls-bridges requires tls-ca"))
	}
	if backend == repository.BackendPostgres && o.DatabaseDSN == "" {
		errs = append(errs, errors.New("postgres backend requires a database DSN"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if o.DatabaseDSN == "" && (backend == repository.BackendSQLite || backend == repository.BackendBolt) {
		o.DatabaseDSN = DefaultMatchDBPath(backend)
	}
	return nil
}

// Structure returns the parsed directory structure. It must be called after Validate.
func (o *Options) Structure() directory.Structure {
	s, _ := directory.ParseStructure(o.DirectoryStructure)
	return s
}

// Backend returns the parsed match backend. It must be called after Validate.
func (o *Options) Backend() repository.Backend {
	b, _ := repository.ParseBackend(o.MatchBackend)
	return b
}

// DefaultMatchDBPath is the database file used when no DSN is configured.
func DefaultMatchDBPath(backend repository.Backend) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "gophfill", "matches-"+string(backend)+".db")
}

// options holds the current configuration values.
var options = NewOptions()

// init initializes command-line flags and sets default values.
func init() {
	options.RegisterFlags(flag.CommandLine)
}

// Parse parses the command-line flags, config file and environment variables to set
// configuration values. It returns a pointer to the Options struct containing the
// parsed configuration values.
func Parse() *Options {
	if err := options.Load(flag.CommandLine, os.Args[1:]); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return options
}
