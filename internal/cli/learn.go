package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/model"
	"github.com/mnemo-ai/mnemo/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "learn [description]",
		Short: "Learn or update a core memory item",
		Long: "Record a long-lived fact or principle. Learning the same (category, name)\n" +
			"again updates the existing item in place; it never creates a duplicate.",
		Args: cobra.MinimumNArgs(1),
		Run:  runLearn,
	}

	cmd.Flags().String("category", "preference", "Category: constitutional, identity, capability, preference")
	cmd.Flags().StringP("name", "n", "", "Item name (required; deduplicated case/whitespace-insensitively)")
	cmd.Flags().StringSliceP("rule", "r", nil, "Rule string (repeatable)")
	cmd.Flags().IntP("priority", "p", 5, "Priority (higher = listed first)")
	cmd.MarkFlagRequired("name")

	RootCmd.AddCommand(cmd)
}

func runLearn(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	name, _ := cmd.Flags().GetString("name")
	rules, _ := cmd.Flags().GetStringSlice("rule")
	priority, _ := cmd.Flags().GetInt("priority")
	description := strings.Join(args, " ")

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	item, err := eng.Learn(cmd.Context(), store.LearnParams{
		Category:    model.Category(category),
		Name:        name,
		Description: description,
		Rules:       rules,
		Priority:    priority,
	})
	if err != nil {
		exitErr("learn", err)
	}

	b, _ := json.Marshal(item)
	fmt.Println(string(b))
}
