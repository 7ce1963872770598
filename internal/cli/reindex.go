package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex [id]",
		Short: "Rebuild the semantic index entry for an episode",
		Long: "Re-run summarization and quality assessment for one episode, or every\n" +
			"episode with --all. Existing entries are replaced, never duplicated.",
		Run: runReindex,
	}
	cmd.Flags().Bool("all", false, "Reindex every stored episode")
	cmd.Flags().Int("parallelism", 4, "Concurrent episodes with --all")
	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	parallelism, _ := cmd.Flags().GetInt("parallelism")

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	if all {
		n, err := eng.ReindexAll(cmd.Context(), parallelism)
		if err != nil {
			exitErr("reindex", err)
		}
		fmt.Printf("{\"reindexed\": %d}\n", n)
		return
	}

	if len(args) != 1 {
		exitErr("reindex", fmt.Errorf("episode id required (or use --all)"))
	}
	entry, err := eng.Reindex(cmd.Context(), args[0])
	if err != nil {
		exitErr("reindex", err)
	}
	b, _ := json.MarshalIndent(entry, "", "  ")
	fmt.Println(string(b))
}
