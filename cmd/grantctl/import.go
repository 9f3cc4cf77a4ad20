package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/store/sqlite"
)

var flagReplace bool

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load a JSON portfolio snapshot into the database",
	Long: `Load a JSON portfolio snapshot into the database.

Records whose dates or amounts cannot be decoded are reported and skipped;
the rest of the file is imported. With --replace, every portfolio record
not in the file is removed in the same transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&flagReplace, "replace", false, "Replace the stored portfolio instead of merging into it")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	snap, err := readSnapshotFile(args[0])
	if err != nil {
		return err
	}

	db, err := sqlite.New(settings.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	write := db.Import
	if flagReplace {
		write = db.Replace
	}
	counts, err := write(cmd.Context(), snap.WithoutLoadFailures())
	if err != nil {
		return err
	}

	// Report what validation will make of it, without failing the import.
	_, issues := grant.Validate(snap)

	out := cmd.OutOrStdout()
	verb := "Imported into"
	if flagReplace {
		verb = "Replaced portfolio in"
	}
	fmt.Fprintf(out, "  %s %s\n", verb, settings.Server.DBPath)
	fmt.Fprintf(out, "    Grants:            %d\n", counts.Grants)
	fmt.Fprintf(out, "    Budget categories: %d\n", counts.Categories)
	fmt.Fprintf(out, "    Expenses:          %d\n", counts.Expenses)
	fmt.Fprintf(out, "    Deliverables:      %d\n", counts.Deliverables)
	fmt.Fprintf(out, "    Outcome metrics:   %d\n", counts.Metrics)
	fmt.Fprintf(out, "    Reports:           %d\n", counts.Reports)
	if len(issues) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\n  %d data-quality issue(s):\n", len(issues))
	for _, is := range issues {
		fmt.Fprintf(out, "    %-7s %v\n", is.Severity, is.Err())
	}
	return nil
}
