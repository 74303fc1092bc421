/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blacktop/ureflect/internal/colors"
	"github.com/blacktop/ureflect/internal/utils"
	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/unreal"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// Color boolean flag for colorized output
	Color bool
	// AppVersion stores the plugin's version
	AppVersion string
	// AppBuildTime stores the plugin's build time
	AppBuildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ureflect",
	Short: "Read Unreal Engine reflection data out of a running game",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		if cmd.Flags().Changed("color") {
			colors.Init(&Color)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ureflect/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&Color, "color", false, "colorize output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	viper.BindEnv("color", "CLICOLOR")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "ureflect"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ureflect")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds every flag in fs to viper under prefix
func bindFlags(prefix string, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(prefix+"."+f.Name, f)
	})
}

// openModule finds the game process and returns it with the load address and size of its main module.
func openModule(names []string, module string) (process.Process, process.Address, uint64, error) {
	proc, err := process.Find(names...)
	if err != nil {
		return nil, 0, 0, err
	}
	if module == "" {
		module = names[0]
	}
	base, err := proc.ModuleAddress(module)
	if err != nil {
		proc.Close()
		return nil, 0, 0, err
	}
	size, err := proc.ModuleSize(module)
	if err != nil {
		proc.Close()
		return nil, 0, 0, err
	}
	utils.Indent(log.WithFields(log.Fields{
		"pid":    proc.Pid(),
		"module": module,
		"base":   base,
	}).Info, 2)("Opened process")
	return proc, base, size, nil
}

// attach opens the game and attaches to its main module.
func attach(names []string, module, engine string, nameCache int) (process.Process, *unreal.Module, error) {
	proc, base, _, err := openModule(names, module)
	if err != nil {
		return nil, nil, err
	}
	offsets, err := unreal.OffsetsFor(engine)
	if err != nil {
		proc.Close()
		return nil, nil, err
	}
	m, err := unreal.Attach(proc, base, unreal.WithOffsets(offsets), unreal.WithNameCache(nameCache))
	if err != nil {
		proc.Close()
		return nil, nil, err
	}
	return proc, m, nil
}
