/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var chainsVerbose bool

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chain presets",
	Long: `List the model chains selectable with --mode or the "mode" request field.

Presets come from the built-in table or from chain.presets_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}

		def := reg.DefaultMode()
		if cfg.Chain.DefaultMode != "" {
			if c, ok := reg.Lookup(cfg.Chain.DefaultMode); ok {
				def = c.Name
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODE\tMODELS\tALIASES\tDESCRIPTION")
		for _, c := range reg.All() {
			name := c.Name
			if name == def {
				name += " (default)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, c.Len(), strings.Join(c.Aliases, ", "), c.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if chainsVerbose {
			for _, c := range reg.All() {
				fmt.Printf("\n%s:\n", c.Name)
				for i, m := range c.Models {
					fmt.Printf("  %2d. %s\n", i+1, m)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)

	chainsCmd.Flags().BoolVarP(&chainsVerbose, "models", "m", false, "Also list every model in each chain")
}
