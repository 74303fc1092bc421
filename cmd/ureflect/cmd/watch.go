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
	"context"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/ureflect/internal/config"
	"github.com/blacktop/ureflect/internal/watch"
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationP("interval", "i", 0, "Poll interval (overrides the config file)")
	viper.BindPFlag("interval", watchCmd.Flags().Lookup("interval"))
}

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the values listed in the config file",
	Example: heredoc.Doc(`
		# Poll every watch in ~/.config/ureflect/config.yaml
		❯ ureflect watch
		# Use another profile and poll faster
		❯ ureflect watch --config redfall.yaml --interval 16ms`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"process":  cfg.Process,
			"interval": cfg.Interval,
			"watches":  len(cfg.Watch),
		}).Info("Watching")

		state := watch.NewState(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reload := make(chan *config.Config, 1)
		if path := viper.ConfigFileUsed(); path != "" {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(path); err != nil {
				return err
			}
			go reloadOnChange(ctx, watcher, reload)
		}

		if err := ctrlc.Default.Run(ctx, func() error {
			return state.Run(ctx, reload)
		}); err != nil {
			log.Warn("Stopped watching")
		}

		return nil
	},
}

// reloadOnChange re-reads the config file whenever it is written
func reloadOnChange(ctx context.Context, watcher *fsnotify.Watcher, reload chan<- *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			if err := viper.ReadInConfig(); err != nil {
				log.WithError(err).Error("failed to read config")
				continue
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				log.WithError(err).Error("ignoring invalid config")
				continue
			}
			select {
			case reload <- cfg:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("error: %v", err)
		}
	}
}
