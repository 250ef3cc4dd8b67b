package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	coordinator    string
	gameID         string
	metrics        bool
	natsBucket     string
	natsURL        string
	participants   []string
	port           int
	prefix         string
	profile        bool
	rosterFile     string
	sessionTimeout time.Duration
	storeTimeout   time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.storeTimeout <= 0 {
		return fmt.Errorf("invalid store timeout (must be positive): %s", c.storeTimeout)
	}
	if c.sessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout (must be positive): %s", c.sessionTimeout)
	}
	if c.natsURL != "" && c.natsBucket == "" {
		return errors.New("--nats-bucket must not be empty when --nats-url is set")
	}
	if len(c.participants) == 0 && c.rosterFile == "" {
		return errors.New("no participants: pass --participant or --roster")
	}

	c.prefix = strings.TrimSuffix(c.prefix, "/")

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SECRETSANTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "secretsanta",
		Short:         "Draw Secret Santa names from a shared pool, one per participant.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SECRETSANTA_BIND)")
	fs.StringVar(&cfg.coordinator, "coordinator", "", "participant allowed to view, export and reset the draw (env: SECRETSANTA_COORDINATOR)")
	fs.StringVar(&cfg.gameID, "game-id", "", "key the game is stored under (default: derived from the roster) (env: SECRETSANTA_GAME_ID)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics at /metrics (env: SECRETSANTA_METRICS)")
	fs.StringVar(&cfg.natsBucket, "nats-bucket", "secretsanta", "jetstream key-value bucket holding games (env: SECRETSANTA_NATS_BUCKET)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "nats server to persist games to; games are kept in memory if unset (env: SECRETSANTA_NATS_URL)")
	fs.StringSliceVar(&cfg.participants, "participant", nil, "participant name, repeatable (env: SECRETSANTA_PARTICIPANT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SECRETSANTA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SECRETSANTA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SECRETSANTA_PROFILE)")
	fs.StringVarP(&cfg.rosterFile, "roster", "r", "", "yaml file listing participants and the coordinator (env: SECRETSANTA_ROSTER)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 24*time.Hour, "time before a login expires (env: SECRETSANTA_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.storeTimeout, "store-timeout", 5*time.Second, "time allowed for each read or write of the game store (env: SECRETSANTA_STORE_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SECRETSANTA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SECRETSANTA_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SECRETSANTA_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SECRETSANTA_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("secretsanta v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
