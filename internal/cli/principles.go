package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "principles",
		Short: "List the active core memory working set",
		Run:   runPrinciples,
	}
	RootCmd.AddCommand(cmd)
}

func runPrinciples(cmd *cobra.Command, args []string) {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	items, err := eng.Principles(cmd.Context())
	if err != nil {
		exitErr("principles", err)
	}

	if len(items) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
}
