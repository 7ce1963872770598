package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/store"
)

func init() {
	export := &cobra.Command{
		Use:   "export",
		Short: "Dump all three collections as JSON to stdout",
		Run:   runExport,
	}

	imp := &cobra.Command{
		Use:   "import [file]",
		Short: "Load a JSON export (file or stdin)",
		Long: "Import a snapshot. Episodes finalize idempotently and core items merge\n" +
			"through learn, so re-importing never duplicates.",
		Run: runImport,
	}

	RootCmd.AddCommand(export, imp)
}

func runExport(cmd *cobra.Command, args []string) {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	snap, err := eng.Store().ExportAll(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(b))
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open import file", err)
		}
		defer f.Close()
		r = f
	}

	var snap store.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		exitErr("parse import", err)
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	n, err := eng.Store().Import(cmd.Context(), &snap)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf("{\"imported\": %d}\n", n)
}
