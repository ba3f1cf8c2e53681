package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dkells/babel-client/internal/api"
	"github.com/dkells/babel-client/internal/session"
)

type Config struct {
	backendURL  string
	origin      string
	sessionFile string
	verbose     bool
}

func (c *Config) logger() *zap.Logger {
	if !c.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// clients builds the HTTP client and session store from config. The session
// store starts from whatever identity is persisted on disk.
func (c *Config) clients() (*api.Client, *session.Store, error) {
	log := c.logger()
	apiClient, err := api.New(c.backendURL, c.origin, log)
	if err != nil {
		return nil, nil, err
	}
	store := session.NewStore(apiClient, c.sessionFile, log)
	store.LoadPersisted()
	return apiClient, store, nil
}

func newRootCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "babel",
		Short:         "Terminal client for Babel, the censored-chat deduction game.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.backendURL, "backend-url", "u", "http://localhost:8080/api", "backend base address (env: BABEL_BACKEND_URL)")
	fs.StringVar(&cfg.origin, "origin", "", "origin used to resolve a relative backend address (env: BABEL_ORIGIN)")
	fs.StringVar(&cfg.sessionFile, "session-file", "", "path of the persisted session file (env: BABEL_SESSION_FILE)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display client internals (env: BABEL_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newLoginCmd(cfg),
		newLogoutCmd(cfg),
		newRoomsCmd(cfg),
		newJoinCmd(cfg),
		newSpectateCmd(cfg),
		newNotesCmd(cfg),
		newSolveCmd(cfg),
		newInviteCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("babel v{{.Version}}\n")

	return cmd
}
