package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/grant"
)

var (
	flagAsOf     string
	flagGrant    string
	flagJSON     bool
	flagCurrency string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute every feed for the portfolio or one grant",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagAsOf, "as-of", "", "Evaluate as of YYYY-MM-DD (default: today)")
	analyzeCmd.Flags().StringVarP(&flagGrant, "grant", "g", "", "Restrict to one grant ID")
	analyzeCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the full result as JSON")
	analyzeCmd.Flags().StringVar(&flagCurrency, "currency", "USD", "ISO 4217 code used to format amounts")
	analyzeCmd.Flags().StringVar(&flagSnapshot, "snapshot", "", "Read a JSON snapshot instead of the database")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	reader, closeReader, err := openReader(settings)
	if err != nil {
		return err
	}
	defer closeReader()

	engine, err := analytics.NewEngine(settings.Engine, grant.SystemClock{})
	if err != nil {
		return err
	}
	svc := analytics.NewService(reader, engine, newLogger(settings))
	svc.FetchTimeout = settings.Server.FetchTimeout

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	filter := grant.Filter{GrantID: grant.GrantID(flagGrant)}

	var res *analytics.Result
	if flagAsOf != "" {
		asOf, err := grant.ParseDate(flagAsOf)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		res, err = svc.EvaluateAt(ctx, filter, asOf)
		if err != nil {
			return err
		}
	} else {
		res, err = svc.Evaluate(ctx, filter)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprint(out, renderResult(res, flagCurrency))
	return err
}

