package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/store"
)

func init() {
	episodes := &cobra.Command{
		Use:   "episodes",
		Short: "Inspect stored episodes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List episodes, newest first",
		Run:   runEpisodesList,
	}
	list.Flags().IntP("limit", "l", 20, "Max episodes")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one episode with turns and its index entry",
		Args:  cobra.ExactArgs(1),
		Run:   runEpisodesShow,
	}

	episodes.AddCommand(list, show)
	RootCmd.AddCommand(episodes)
}

func runEpisodesList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	eps, err := eng.Store().ListEpisodes(cmd.Context(), store.EpisodeFilter{Limit: limit})
	if err != nil {
		exitErr("list episodes", err)
	}

	if len(eps) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(eps, "", "  ")
	fmt.Println(string(b))
}

func runEpisodesShow(cmd *cobra.Command, args []string) {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	ep, err := eng.Store().LoadEpisode(cmd.Context(), args[0])
	if err != nil {
		exitErr("load episode", err)
	}

	out := map[string]interface{}{"episode": ep}
	entry, err := eng.Store().GetIndexEntry(cmd.Context(), args[0])
	switch {
	case err == nil:
		out["index"] = entry
	case errors.Is(err, store.ErrNotFound):
		out["index"] = nil // not yet indexed
	default:
		exitErr("load index entry", err)
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
