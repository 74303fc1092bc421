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
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blacktop/ureflect/internal/colors"
	"github.com/blacktop/ureflect/internal/utils"
	"github.com/blacktop/ureflect/pkg/process"
	"github.com/blacktop/ureflect/pkg/unreal"
)

var (
	colorClass   = colors.Class().SprintFunc()
	colorField   = colors.Field().SprintFunc()
	colorOffset  = colors.Offset().SprintfFunc()
	colorAddress = colors.Address().SprintFunc()
	colorFaint   = colors.Faint().SprintFunc()
)

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringSliceP("process", "p", []string{}, "Game executable name(s)")
	dumpCmd.Flags().StringP("module", "m", "", "Main module (defaults to the process name)")
	dumpCmd.Flags().StringP("engine", "e", "", "Engine version used to pick the reflection layout")
	dumpCmd.Flags().IntP("hexdump", "x", 0, "Hexdump this many bytes of the object")
	dumpCmd.Flags().BoolP("world", "w", false, "Follow the path from GWorld instead of GEngine")
	bindFlags("dump", dumpCmd.Flags())
}

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump [FIELD...]",
	Short: "Dump the class and properties of the object at a path from GEngine or GWorld",
	Example: heredoc.Doc(`
		# Dump the GameEngine object itself
		❯ ureflect dump -p Redfall.exe
		# Dump the first local player's controller and its first 256 bytes
		❯ ureflect dump -p Redfall.exe GameInstance LocalPlayers 0x0 PlayerController --hexdump 256
		# Dump the persistent level of the current world
		❯ ureflect dump -p Redfall.exe --world PersistentLevel`),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		names := viper.GetStringSlice("dump.process")
		if len(names) == 0 {
			names = viper.GetStringSlice("process")
		}
		if len(names) == 0 {
			return fmt.Errorf("must supply --process")
		}
		module := viper.GetString("dump.module")
		if module == "" {
			module = viper.GetString("module")
		}
		engine := viper.GetString("dump.engine")
		if engine == "" {
			engine = viper.GetString("engine")
		}

		proc, m, err := attach(names, module, engine, viper.GetInt("name-cache"))
		if err != nil {
			return err
		}
		defer proc.Close()

		var ok bool
		root := m.GEngine()
		if viper.GetBool("dump.world") {
			if root, ok = m.GWorld(); !ok {
				return fmt.Errorf("GWorld was not found in %s", module)
			}
		}

		ptr := unreal.NewPointer(root, len(args), args...)
		addr, ok := ptr.Address(m)
		if !ok {
			return fmt.Errorf("failed to resolve %s (resolved %d/%d fields)", ptr, ptr.Resolved(), ptr.Depth())
		}
		// a non-empty path ends at the field holding the object pointer
		if ptr.Depth() > 0 {
			if addr, ok = m.ReadPointer(addr); !ok || addr.IsNull() {
				return fmt.Errorf("no object at %s", ptr)
			}
		}
		obj := m.Object(addr)

		cls, ok := obj.Class()
		if !ok {
			return fmt.Errorf("failed to read class of object at %s", addr)
		}
		name, _ := obj.Name()
		log.WithFields(log.Fields{
			"object": name,
			"addr":   addr,
		}).Info("Object")

		fmt.Println(hierarchy(cls))
		dumpProperties(cls)

		if n := viper.GetInt("dump.hexdump"); n > 0 {
			data := make([]byte, n)
			if err := m.Read(addr, data); err != nil {
				return fmt.Errorf("failed to read object: %v", err)
			}
			fmt.Println()
			fmt.Print(utils.HexDump(data, uint64(addr)))
		}

		return nil
	},
}

func hierarchy(cls unreal.UClass) string {
	var chain []string
	for c := range cls.Hierarchy() {
		name, ok := c.Name()
		if !ok {
			name = c.Address().String()
		}
		chain = append(chain, colorClass(name))
	}
	return strings.Join(chain, colorFaint(" : "))
}

// dumpProperties prints each property list in the class chain once
func dumpProperties(cls unreal.UClass) {
	seen := make(map[process.Address]bool)
	for c := range cls.Hierarchy() {
		first := true
		for prop := range c.Properties() {
			if seen[prop.Address()] {
				break
			}
			seen[prop.Address()] = true
			if first {
				name, _ := c.Name()
				fmt.Printf("\n%s\n", colorClass(name))
				first = false
			}
			pname, _ := prop.Name()
			off, _ := prop.Offset()
			fmt.Printf("%s%s %s %s\n", utils.Pad(4), colorOffset("%#06x", off), colorField(pname), colorAddress(prop.Address()))
		}
	}
}
