package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the cached model catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached models",
		Run:   runModelsList,
	}
	listCmd.Flags().String("family", "", "Filter by model family")

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one cached model",
		Args:  cobra.ExactArgs(1),
		Run:   runModelsShow,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a model from the cache",
		Args:  cobra.ExactArgs(1),
		Run:   runModelsRm,
	}

	modelsCmd.AddCommand(listCmd, showCmd, rmCmd)
	RootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, args []string) {
	family, _ := cmd.Flags().GetString("family")

	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	models, err := mgr.GetModels(cmd.Context(), false)
	if err != nil {
		exitErr("list models", err)
	}
	if family != "" {
		filtered := models[:0]
		for _, m := range models {
			if m.Details.Family == family {
				filtered = append(filtered, m)
			}
		}
		models = filtered
	}

	b, _ := json.MarshalIndent(models, "", "  ")
	fmt.Println(string(b))
}

func runModelsShow(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	m, err := mgr.GetModel(cmd.Context(), args[0], true)
	if err != nil {
		exitErr("get model", err)
	}
	if m == nil {
		exitErr("get model", fmt.Errorf("model not cached: %s", args[0]))
	}

	b, _ := json.MarshalIndent(m, "", "  ")
	fmt.Println(string(b))
}

func runModelsRm(cmd *cobra.Command, args []string) {
	mgr, st, err := openManager()
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	deleted, err := mgr.DeleteModelCache(cmd.Context(), args[0])
	if err != nil {
		exitErr("delete model", err)
	}
	if !deleted {
		exitErr("delete model", fmt.Errorf("model not cached: %s", args[0]))
	}
	fmt.Printf("removed %s\n", args[0])
}
