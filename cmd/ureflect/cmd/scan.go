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
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/blacktop/ureflect/internal/utils"
	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/signature"
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceP("process", "p", []string{}, "Game executable name(s)")
	scanCmd.Flags().StringP("module", "m", "", "Module to scan (defaults to the process name)")
	scanCmd.Flags().StringP("dump", "d", "", "Scan a raw memory dump instead of a live process")
	scanCmd.Flags().StringP("base", "b", "0", "Address the dump was taken from")
	scanCmd.Flags().Uint64("disp", 0, "Offset from the match to a RIP-relative displacement")
	scanCmd.Flags().Uint64("end", 4, "Bytes from the end of the displacement to the end of the instruction")
	scanCmd.MarkFlagsMutuallyExclusive("process", "dump")
	bindFlags("scan", scanCmd.Flags())
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <PATTERN>",
	Short: "Find a byte pattern in a game module or memory dump",
	Example: heredoc.Doc(`
		# Find GEngine in a running game
		❯ ureflect scan -p Redfall.exe "48 8B 05 ?? ?? ?? ?? 8B 88 ?? ?? ?? ?? 41" --disp 3
		# Find the FNamePool in a raw dump of the main module
		❯ ureflect scan --dump game.bin --base 0x140000000 "74 09 48 8D 15 ?? ?? ?? ?? EB 16" --disp 5`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		sig, err := signature.Parse(args[0])
		if err != nil {
			return err
		}

		var r process.Reader
		var base process.Address
		var size uint64

		if dump := viper.GetString("scan.dump"); dump != "" {
			addr, err := utils.ConvertStrToInt(viper.GetString("scan.base"))
			if err != nil {
				return fmt.Errorf("invalid --base: %v", err)
			}
			snap, err := process.LoadSnapshot(dump, process.Address(addr))
			if err != nil {
				return err
			}
			base, size = snap.Bounds()
			r = snap
		} else {
			names := viper.GetStringSlice("scan.process")
			if len(names) == 0 {
				names = viper.GetStringSlice("process")
			}
			if len(names) == 0 {
				return fmt.Errorf("must supply --process or --dump")
			}
			module := viper.GetString("scan.module")
			if module == "" {
				module = viper.GetString("module")
			}
			proc, b, sz, err := openModule(names, module)
			if err != nil {
				return err
			}
			defer proc.Close()
			r, base, size = proc, b, sz
		}

		log.WithFields(log.Fields{
			"pattern": sig,
			"base":    base,
			"size":    humanize.Bytes(size),
		}).Info("Scanning")

		var s *spinner.Spinner
		if term.IsTerminal(int(os.Stderr.Fd())) {
			s = spinner.New(spinner.CharSets[38], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			s.Prefix = color.BlueString("   • Scanning... ")
			s.Start()
		}
		match, ok := sig.Scan(r, base, size)
		if s != nil {
			s.Stop()
		}
		if !ok {
			return fmt.Errorf("pattern not found")
		}

		if cmd.Flags().Changed("disp") {
			anchor := signature.Anchor{
				Pattern:        sig,
				Displacement:   viper.GetUint64("scan.disp"),
				InstructionEnd: viper.GetUint64("scan.end"),
			}
			target, ok := anchor.Resolve(r, match, uint64(sig.Len()))
			if !ok {
				return fmt.Errorf("failed to read displacement at %s", match.Add(anchor.Displacement))
			}
			utils.Indent(log.WithFields(log.Fields{
				"match":  match,
				"offset": fmt.Sprintf("%#x", uint64(match-base)),
				"target": target,
			}).Info, 2)("Found")
			return nil
		}

		utils.Indent(log.WithFields(log.Fields{
			"match":  match,
			"offset": fmt.Sprintf("%#x", uint64(match-base)),
		}).Info, 2)("Found")

		return nil
	},
}
