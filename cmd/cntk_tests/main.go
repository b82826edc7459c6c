// cntk_tests runs the training regression scenarios end-to-end and exits
// with status 0 iff every scenario passes.
//
// Each scenario builds its model topology, trains it on a synthetic
// seed-deterministic dataset and checks the evaluation accuracy against the
// scenario threshold. A per-scenario verdict summary is printed on stdout.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/gomlx/backends"
	"k8s.io/klog/v2"

	"github.com/ktolle/CNTK/harness"
	"github.com/ktolle/CNTK/scenarios"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagSeed       = flag.Int64("seed", 42, "Seed for variable initialization, dataset generation and shuffling.")
	flagScenarios  = flag.String("scenarios", "", "Comma-separated scenario names to run. Empty runs all of them.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save trained models of passing scenarios. If left empty, no checkpoints are created.")
	flagList       = flag.Bool("list", false, "List the registered scenario names and exit.")
	flagSet        = flag.String("set", "", "Context-parameter overrides applied to every scenario, in the format \"param=value;scope/param=value;...\". E.g. -set=\"learning_rate=0.01\".")
	flagProgress   = flag.Bool("progress", false, "Display a progress bar while each scenario trains.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagList {
		for _, scenario := range scenarios.All(*flagSeed) {
			fmt.Println(scenario.Name)
		}
		return
	}

	var names []string
	if *flagScenarios != "" {
		names = strings.Split(*flagScenarios, ",")
	}
	selected, err := scenarios.Select(*flagSeed, names)
	if err != nil {
		klog.Exitf("Invalid --scenarios: %v", err)
	}

	backend := backends.MustNew()
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())

	driver := &harness.Driver{
		Backend:       backend,
		CheckpointDir: *flagCheckpoint,
		Settings:      *flagSet,
		Progress:      *flagProgress,
	}
	results, err := driver.RunAll(selected)
	if err != nil {
		klog.Exitf("Failed to run scenarios: %+v", err)
	}
	driver.Report(results)
	os.Exit(harness.ExitCode(results))
}
