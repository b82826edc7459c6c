package harness

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Driver enumerates the registered scenarios, executes them sequentially and
// aggregates their results. Scenarios are independent; they are run in
// registration order for resource simplicity, not because the outcomes
// depend on ordering.
type Driver struct {
	Backend       backends.Backend
	CheckpointDir string

	// Settings and Progress are handed to the per-scenario Runner, see
	// there.
	Settings string
	Progress bool

	// Out receives the per-scenario progress lines and the final report.
	// Defaults to os.Stdout.
	Out io.Writer
}

// RunAll executes every scenario and returns exactly one Result per
// scenario, in registration order. It fails upfront (before running
// anything) only on a broken registration: duplicate or empty scenario
// names.
func (d *Driver) RunAll(scenarios []Scenario) ([]Result, error) {
	if err := checkRegistration(scenarios); err != nil {
		return nil, err
	}
	out := d.out()
	runner := &Runner{
		Backend:       d.Backend,
		CheckpointDir: d.CheckpointDir,
		Settings:      d.Settings,
		Progress:      d.Progress,
	}
	results := make([]Result, 0, len(scenarios))
	for _, scenario := range scenarios {
		klog.V(1).Infof("Running scenario %q (model=%s, data=%s)",
			scenario.Name, scenario.Builder.Name(), scenario.Data.Name())
		result := runner.Run(scenario)
		results = append(results, result)
		fmt.Fprintln(out, &result)
	}
	return results, nil
}

// Report prints the final per-scenario summary and returns whether every
// scenario passed. Failing scenario names are aggregated on the last line.
func (d *Driver) Report(results []Result) (allPass bool) {
	out := d.out()
	var failing []string
	var elapsed time.Duration
	fmt.Fprintf(out, "\n%d scenarios:\n", len(results))
	for _, result := range results {
		verdict := passStyle.Render(result.Verdict.String())
		if !result.Passed() {
			verdict = failStyle.Render(result.Verdict.String())
			failing = append(failing, result.Scenario)
		}
		fmt.Fprintf(out, "  %s %s\n", verdict, &result)
		elapsed += result.Elapsed
	}
	if len(failing) > 0 {
		fmt.Fprintf(out, "%s: %s (total %s)\n",
			failStyle.Render("FAILED"), strings.Join(failing, ", "), elapsed.Round(time.Millisecond))
		return false
	}
	fmt.Fprintf(out, "%s (total %s)\n", passStyle.Render("OK"), elapsed.Round(time.Millisecond))
	return true
}

// ExitCode maps results to the process exit status: 0 iff every scenario
// passed.
func ExitCode(results []Result) int {
	for _, result := range results {
		if !result.Passed() {
			return 1
		}
	}
	return 0
}

func (d *Driver) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}

func checkRegistration(scenarios []Scenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, scenario := range scenarios {
		if scenario.Name == "" {
			return errors.New("scenario with empty name registered")
		}
		if seen[scenario.Name] {
			return errors.Errorf("scenario name %q registered twice", scenario.Name)
		}
		seen[scenario.Name] = true
		if scenario.Builder == nil || scenario.Data == nil {
			return errors.Errorf("scenario %q is missing its model builder or data source", scenario.Name)
		}
	}
	return nil
}
