/*
Copyright © 2026 the Kaleido authors.
This file is part of Kaleido.

Kaleido is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Kaleido is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Kaleido.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package kaleidoutil holds the command-line interface of the Kaleido
// measurement-uncertainty processor.
package kaleidoutil

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/kaleido"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Kaleido.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level specifies the log level: debug, info, warning,
              error, or off. All diagnostic output goes to the standard
              error stream.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "source-type",
			usage: `
              source-type specifies the schema of the source product,
              which determines the perturbed variables, their error
              distributions, and their physical constraints.`,
			shorthand:  "t",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "schema-file",
			usage: `
              schema-file specifies a TOML file with custom source-type
              schemas to add to the built-in registry.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "selector",
			usage: `
              selector identifies the ensemble member's deterministic
              random stream. The same selector always reproduces the
              same member. A selector of 0 produces the unperturbed
              nominal member.`,
			shorthand:  "s",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags()},
		},
		{
			name: "antithetic",
			usage: `
              antithetic generates the variance-reducing mirror member:
              selectors 2k-1 and 2k form an antithetic pair whose
              perturbations are distributional mirrors.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags()},
		},
		{
			name: "engine-reader",
			usage: `
              engine-reader specifies the engine used to read the source
              product files: cdf or netcdf. If not set, the engine is
              selected by file magic.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "engine-writer",
			usage: `
              engine-writer specifies the engine used to write the
              target product file. Only the cdf engine supports writing.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "mode",
			usage: `
              mode specifies the operating mode. In multithreading mode
              a bounded worker pool executes the chunk graph; in
              synchronous mode a single-thread scheduler is used. Both
              modes produce bit-identical results.`,
			defaultVal: kaleido.ModeMultithreading,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "workers",
			usage: `
              workers specifies the number of workers used in
              multithreading mode. If not set, the number of workers is
              determined by the number of logical processors.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "chunk-size-lat",
			usage: `
              chunk-size-lat specifies the chunk size along the
              latitudinal dimension for reading and computing data
              arrays. A value of -1 refers to the full latitudinal
              extent and a value of 0 to the default layout.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "chunk-size-lon",
			usage: `
              chunk-size-lon specifies the chunk size along the
              longitudinal dimension for reading and computing data
              arrays. A value of -1 refers to the full longitudinal
              extent and a value of 0 to the default layout.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{scatterCmd.Flags(), collectCmd.Flags()},
		},
		{
			name: "filter-fwhm",
			usage: `
              filter-fwhm specifies the full width at half maximum, in
              pixels, of the Gaussian kernel used to low-pass filter the
              standard uncertainty.`,
			defaultVal: kaleido.DefaultFilterFWHM,
			flagsets:   []*pflag.FlagSet{collectCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("KALEIDO")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(scatterCmd)
	Root.AddCommand(collectCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and loads any custom source-type schemas.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("kaleido: problem reading configuration file: %v", err)
		}
	}
	if schemaFile := Cfg.GetString("schema-file"); schemaFile != "" {
		f, err := os.Open(schemaFile)
		if err != nil {
			return fmt.Errorf("kaleido: opening schema file: %v", err)
		}
		defer f.Close()
		if err := kaleido.LoadSourceTypes(f); err != nil {
			return err
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "kaleido",
	Short: "A Monte Carlo measurement-uncertainty processor.",
	Long: `Kaleido simulates measurement uncertainty for gridded geophysical
datasets. The scatter subcommand generates statistically constrained
randomized variants of a source dataset; the collect subcommand reduces an
ensemble of such variants into standard-uncertainty estimates.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'KALEIDO_var'
where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Kaleido.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Kaleido v%s\n", kaleido.Version)
	},
	DisableAutoGenTag: true,
}

var scatterCmd = &cobra.Command{
	Use:   "scatter [flags] source_file target_file",
	Short: "Generate one randomized variant of a source dataset.",
	Long: `scatter perturbs every configured variable of the source dataset with
deterministic pseudo-random measurement errors and writes the result to the
target dataset. The same selector always reproduces the same variant,
independent of the operating mode and the number of workers.`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(Cfg.GetString("log-level"))
		logConfig(log)
		return kaleido.Scatter(cmd.Context(), kaleido.ScatterConfig{
			SourceFile:   args[0],
			TargetFile:   args[1],
			SourceType:   cast.ToString(Cfg.Get("source-type")),
			Selector:     cast.ToInt(Cfg.Get("selector")),
			Antithetic:   cast.ToBool(Cfg.Get("antithetic")),
			ReaderEngine: cast.ToString(Cfg.Get("engine-reader")),
			WriterEngine: cast.ToString(Cfg.Get("engine-writer")),
			Mode:         cast.ToString(Cfg.Get("mode")),
			Workers:      cast.ToInt(Cfg.Get("workers")),
			ChunkLat:     cast.ToInt(Cfg.Get("chunk-size-lat")),
			ChunkLon:     cast.ToInt(Cfg.Get("chunk-size-lon")),
			Events:       kaleido.NewLogSink(log),
		})
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect [flags] source_glob target_file",
	Short: "Reduce an ensemble of randomized variants to uncertainties.",
	Long: `collect expands the source glob to an ordered list of ensemble member
files (the lexicographically first match is the nominal member) and writes
the nominal values, the standard uncertainty, and a low-pass filtered
standard uncertainty for every configured variable to the target dataset.`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(Cfg.GetString("log-level"))
		logConfig(log)
		return kaleido.Collect(cmd.Context(), kaleido.CollectConfig{
			SourceGlob:   args[0],
			TargetFile:   args[1],
			SourceType:   cast.ToString(Cfg.Get("source-type")),
			ReaderEngine: cast.ToString(Cfg.Get("engine-reader")),
			WriterEngine: cast.ToString(Cfg.Get("engine-writer")),
			Mode:         cast.ToString(Cfg.Get("mode")),
			Workers:      cast.ToInt(Cfg.Get("workers")),
			ChunkLat:     cast.ToInt(Cfg.Get("chunk-size-lat")),
			ChunkLon:     cast.ToInt(Cfg.Get("chunk-size-lon")),
			FilterFWHM:   cast.ToFloat64(Cfg.Get("filter-fwhm")),
			Events:       kaleido.NewLogSink(log),
		})
	},
}

// The process exit codes.
const (
	// ExitSuccess indicates a successful and complete processing.
	ExitSuccess = 0

	// ExitFailure indicates a processing failure.
	ExitFailure = 1

	// ExitUsage indicates a failure due to an invalid argument or an
	// invalid configuration.
	ExitUsage = 128

	// ExitInterrupted indicates that the processing was interrupted.
	ExitInterrupted = 130
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cerr *kaleido.ConfigError
	if errors.As(err, &cerr) {
		return ExitUsage
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return ExitFailure
}
