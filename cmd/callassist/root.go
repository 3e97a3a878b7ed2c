package main

import (
	"github.com/danmuck/callassist/internal/api"
	"github.com/danmuck/callassist/internal/config"
	"github.com/spf13/cobra"
)

// app carries the resolved configuration into subcommands.
type app struct {
	opts configOptions
	cfg  config.Config
}

func (a *app) load() error {
	cfg, err := resolveConfig(a.opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) apiClient() (*api.Client, error) {
	return api.New(a.cfg.APIURL, api.WithTimeout(a.cfg.Timeout()))
}

// newRootCmd creates the root callassist command with all subcommands attached.
func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "callassist",
		Short: "Live call-assist session client",
		Long: "callassist follows one call-assist session: it keeps the event channel\n" +
			"in sync across reconnects, renders transcript, alerts, required questions\n" +
			"and guidance, and ends the session when the transcript is final.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.opts.path, "config", "c", "", "config file (default ./"+defaultConfigPath+" when present)")
	flags.StringVar(&a.opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	flags.StringVar(&a.opts.apiURL, "api-url", "", "session API base url (overrides config and "+envAPIURL+")")
	flags.StringVar(&a.opts.wsURL, "ws-url", "", "event channel base url (overrides config and "+envWSURL+")")

	cmd.AddCommand(
		newCreateCmd(a),
		newWatchCmd(a),
		newEndCmd(a),
		newReplayCmd(a),
		newConfigCmd(a),
	)
	return cmd
}
