package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audumla/signalrules/internal/loader"
	"github.com/audumla/signalrules/internal/rules"
)

// checkCmd validates documents without running the engine. Catalog failure
// is fatal; individually invalid rules are reported but leave the exit
// status zero, matching the engine's lenient per-rule loading.
var checkCmd = &cobra.Command{
	Use:   "check <catalog> [rules]",
	Short: "Validate catalog and rule documents",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("strict", false, "exit nonzero when any rule is invalid")
}

func runCheck(cobraCmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cat, err := loader.LoadCatalog(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("catalog ok: %d signals in %d tiers, %d known events\n",
		len(cat.Names()), len(cat.Tiers()), len(cat.AllKnownEvents()))

	if len(args) < 2 {
		return nil
	}

	ruleDoc, err := loader.LoadRules(args[1])
	if err != nil {
		return err
	}
	engine, err := rules.New(cat, ruleDoc, log)
	if err != nil {
		return err
	}

	dropped := engine.Dropped()
	fmt.Printf("rules ok: %d active, %d dropped\n", len(engine.Rules()), len(dropped))
	for _, d := range dropped {
		fmt.Printf("  dropped [%d] %s: %s\n", d.Index, d.Title, d.Reason)
	}

	if strict, _ := cobraCmd.Flags().GetBool("strict"); strict && len(dropped) > 0 {
		return fmt.Errorf("%d invalid rule(s)", len(dropped))
	}
	return nil
}
