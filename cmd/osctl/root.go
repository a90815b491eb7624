package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cjj2010/incubator-opendal/internal/logging"
	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"

	// Backends register themselves with the factory.
	_ "github.com/cjj2010/incubator-opendal/pkg/storage/cos"
	_ "github.com/cjj2010/incubator-opendal/pkg/storage/ghac"
	_ "github.com/cjj2010/incubator-opendal/pkg/storage/memory"
	_ "github.com/cjj2010/incubator-opendal/pkg/storage/s3"
)

var (
	cfgFile     string
	profileName string
	schemeFlag  string
	optionsFlag string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "osctl",
	Short: "Unified client for object storage services",
	Long: `osctl talks to any registered storage backend through one set of
commands. Backends are configured as named profiles in the config file,
or ad hoc with --scheme and --option.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		if err := logging.Init(logging.Config{
			Level:  viper.GetString("log_level"),
			Format: "console",
		}); err != nil {
			return err
		}
		if metricsAddr != "" {
			go func() {
				if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
					logging.Error("metrics listener failed", zap.Error(err))
				}
			}()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.osctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile to use (default from config)")
	rootCmd.PersistentFlags().StringVar(&schemeFlag, "scheme", "", "open a backend ad hoc by scheme instead of a profile")
	rootCmd.PersistentFlags().StringVar(&optionsFlag, "option", "", "ad-hoc backend options as k=v,k=v")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-listen", "", "serve prometheus metrics on this address while running")
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "resolving home directory failed")
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".osctl")
	}
	viper.SetDefault("log_level", "warn")

	if err := viper.ReadInConfig(); err != nil {
		// Running without a config file is fine for --scheme usage.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return errors.Wrap(err, "loading config failed")
	}
	return nil
}

// openAccessor resolves the target backend: an ad-hoc scheme when
// --scheme is set, otherwise the selected (or default) profile.
func openAccessor() (storage.Accessor, error) {
	if schemeFlag != "" {
		return storage.Open(schemeFlag, parseOptions(optionsFlag))
	}

	name := profileName
	if name == "" {
		name = viper.GetString("default_profile")
	}
	if name == "" {
		return nil, errors.New("no profile selected: set --profile, default_profile, or --scheme")
	}

	opts := viper.GetStringMapString("profiles." + name)
	if len(opts) == 0 {
		return nil, errors.Errorf("profile %q not found in config", name)
	}
	profile := storage.Profile{Type: opts["type"], Options: make(storage.Options)}
	for k, v := range opts {
		if k != "type" {
			profile.Options[k] = v
		}
	}
	a, err := storage.OpenProfile(profile)
	if err != nil {
		return nil, errors.Wrapf(err, "opening profile %q failed", name)
	}
	return a, nil
}

func parseOptions(s string) storage.Options {
	opts := make(storage.Options)
	if s == "" {
		return opts
	}
	for _, pair := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			opts[k] = v
		}
	}
	return opts
}
