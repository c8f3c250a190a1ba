package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parleylabs/parley/pkg/inference"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known model identifiers and their backend routing",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	ids := inference.KnownModels()
	if catalogPath := viper.GetString("models_file"); catalogPath != "" {
		catalog, err := inference.LoadCatalog(catalogPath)
		if err != nil {
			return err
		}
		ids = append(ids, catalog.Models...)
		ids = append(ids, catalog.Hyperbolic...)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tBACKEND")
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		family, err := inference.ClassifyModel(id)
		backend := "unroutable"
		if err == nil {
			backend = family.String()
		}
		fmt.Fprintf(w, "%s\t%s\n", id, backend)
	}
	return w.Flush()
}
