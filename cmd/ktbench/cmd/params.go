package cmd

import (
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/ktbench"
)

const (
	configFlag      = "config"
	verboseFlag     = "verbose"
	logFileFlag     = "log-file"
	workDirFlag     = "workdir"
	settingsFlag    = "settings"
	inventoryFlag   = "inventory"
	paramsFlag      = "params"
	plotParamsFlag  = "plot-params"
	userFlag        = "user"
	debugFlag       = "debug"
	noResultsDbFlag = "no-results-db"

	envPrefix = "KTBENCH"
	// Rotation of --log-file.
	logFileMaxSizeMb  = 100
	logFileMaxBackups = 3
)

func addFlags(flags *pflag.FlagSet) {
	defaults := ktbench.New().Params
	flags.String(configFlag, "", "Config file (default is $HOME/.ktbench.yaml).")
	flags.Bool(verboseFlag, false, "Log at debug level, with timestamps.")
	flags.String(logFileFlag, "", "Also log to this file, rotated by size.")
	flags.String(workDirFlag, defaults.WorkDir, "Directory holding keys, committee, logs and results.")
	flags.String(settingsFlag, defaults.SettingsFile, "Testbed settings file.")
	flags.String(inventoryFlag, defaults.InventoryFile, "Hosts of the testbed, per region.")
	flags.String(paramsFlag, defaults.BenchParamsFile, "Bench parameters file.")
	flags.String(plotParamsFlag, defaults.PlotParamsFile, "Plot parameters file.")
	flags.String(userFlag, defaults.User, "User to log into remote hosts as.")
	flags.Bool(debugFlag, false, "Run the nodes with debug logging.")
	flags.Bool(noResultsDbFlag, false, "Don't record results in the results database.")
}

// initParams resolves every flag from, in order of precedence, the command line, the environment and the config file,
// then configures logging.
func initParams(cmd *cobra.Command, app *ktbench.App) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return errors.WithStack(err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString(configFlag); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.WithStack(&bencherrors.ErrConfigFile{Path: configFile, Err: err})
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "error getting user home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigName(".ktbench")
		if err := v.ReadInConfig(); err != nil {
			// Users don't have to have a config file.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return errors.WithStack(&bencherrors.ErrConfigFile{Path: v.ConfigFileUsed(), Err: err})
			}
		}
	}

	app.Params.WorkDir = v.GetString(workDirFlag)
	app.Params.SettingsFile = v.GetString(settingsFlag)
	app.Params.InventoryFile = v.GetString(inventoryFlag)
	app.Params.BenchParamsFile = v.GetString(paramsFlag)
	app.Params.PlotParamsFile = v.GetString(plotParamsFlag)
	app.Params.User = v.GetString(userFlag)
	app.Params.Debug = v.GetBool(debugFlag)
	app.Params.NoResultsDb = v.GetBool(noResultsDbFlag)

	return logging.Configure(logging.Config{
		Verbose:    v.GetBool(verboseFlag),
		LogFile:    v.GetString(logFileFlag),
		MaxSizeMb:  logFileMaxSizeMb,
		MaxBackups: logFileMaxBackups,
	})
}
