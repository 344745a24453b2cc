// Command circuit analyses lap traces: track geometry, corner KPIs and the
// physics-limited optimal speed profile, with optional plots, an HTML
// report and a sqlite result cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/circuit.report/internal/monitoring"
	"github.com/banshee-data/circuit.report/internal/version"
)

var (
	traceFlag   = flag.String("trace", "", "Comma-separated lap trace CSV files; the first lap is the comparison reference")
	vehicleFlag = flag.String("vehicle", "", "Vehicle parameters JSON (default: built-in vehicle)")
	tuningFlag  = flag.String("tuning", "", "Tuning config JSON (default: built-in tuning)")
	methodFlag  = flag.String("method", "", "Segmentation method: pelt, css or asc (overrides tuning)")
	detectFlag  = flag.String("detect", "", "Corner detection: heading_rate or geometry (overrides tuning)")
	jsonFlag    = flag.String("json", "", "Write the full analysis as JSON to this path")
	plotsFlag   = flag.String("plots", "", "Write PNG speed and curvature plots into this directory")
	htmlFlag    = flag.String("html", "", "Write an interactive HTML report to this path")
	dbFlag      = flag.String("db", "", "sqlite result store; identical inputs reuse stored analyses")
	listFlag    = flag.Int("list", 0, "List the N most recent stored runs from -db and exit")
	unitsFlag   = flag.String("units", "mps", "Speed units for output: mps, mph, kmph or kph")
	openFlag    = flag.Bool("open-circuit", false, "Treat laps as open (point-to-point) rather than closed circuits")
	workersFlag = flag.Int("workers", 0, "Maximum laps analysed concurrently (overrides tuning)")
	diagFlag    = flag.Bool("diag", false, "Enable diagnostic logging from the analysis layers")
	versionFlag = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDiagnostics(*diagFlag)

	opts := options{
		VehiclePath: *vehicleFlag,
		TuningPath:  *tuningFlag,
		Method:      *methodFlag,
		Detect:      *detectFlag,
		JSONPath:    *jsonFlag,
		PlotsDir:    *plotsFlag,
		HTMLPath:    *htmlFlag,
		DBPath:      *dbFlag,
		List:        *listFlag,
		Units:       *unitsFlag,
		OpenCircuit: *openFlag,
		Workers:     *workersFlag,
	}
	if *traceFlag != "" {
		for _, p := range strings.Split(*traceFlag, ",") {
			if p = strings.TrimSpace(p); p != "" {
				opts.TracePaths = append(opts.TracePaths, p)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRunner(os.Stdout).run(ctx, opts); err != nil {
		log.Fatalf("circuit: %v", err)
	}
}
