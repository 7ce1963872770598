package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [prompt]",
		Short: "Rank stored memory against a prompt and synthesize rules",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQuery,
	}
	cmd.Flags().IntP("limit", "l", 0, "Max ranked results (default from config)")
	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	prompt := strings.Join(args, " ")

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	res, err := eng.Query(cmd.Context(), prompt, limit)
	if err != nil {
		exitErr("query", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
