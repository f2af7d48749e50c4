// Command lengthclusteringstrategy runs the payload-length mean-shift
// clustering detection strategy over a positive and a negative PCAP
// corpus. strategy_param selects the TLS mode: "all", "only", "none",
// or "guess" (default).
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitus133/CovertMark/internal/runcli"
	"github.com/vitus133/CovertMark/metrics"
	"github.com/vitus133/CovertMark/strategy"
	"github.com/vitus133/CovertMark/tracestore"
)

var (
	metricsAddr = flag.String("metrics_addr", ":8081", "Address to serve /metrics on")
	csvOut      = flag.String("csv_out", "", "If set, write the (config, TPR, FPR, score) sweep CSV to this path")

	// tlsModeFlag overrides the positional strategy_param's TLS mode
	// when explicitly set.
	tlsModeFlag = flagx.Enum{Options: []string{"", "all", "only", "none", "guess"}, Value: ""}
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	flag.Var(&tlsModeFlag, "tls_mode", "Override the positional strategy_param's TLS mode (all|only|none|guess)")
}

func parseTLSMode(s string) (strategy.TLSMode, error) {
	switch s {
	case "", "guess":
		return strategy.TLSModeGuess, nil
	case "all":
		return strategy.TLSModeAll, nil
	case "only":
		return strategy.TLSModeOnly, nil
	case "none":
		return strategy.TLSModeNone, nil
	default:
		return 0, fmt.Errorf("lengthclusteringstrategy: unknown tls mode %q (want all|only|none|guess)", s)
	}
}

func main() {
	flag.Parse()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("serving metrics on %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	args, err := runcli.ParseArgs(flag.Args())
	rtx.Must(err, "invalid arguments")

	modeStr := args.StrategyParam
	if tlsModeFlag.Value != "" {
		modeStr = tlsModeFlag.Value
	}
	mode, err := parseTLSMode(modeStr)
	rtx.Must(err, "invalid strategy_param")

	store := tracestore.NewMemStore()
	corpora, err := runcli.LoadCorpora(args, store, runcli.TCPTraces)
	if err != nil {
		log.Printf("fatal: loading corpora: %v", err)
		os.Exit(1)
	}
	metrics.PacketsLoaded.WithLabelValues("lengthcluster", "positive").Add(float64(len(corpora.Positive)))
	metrics.PacketsLoaded.WithLabelValues("lengthcluster", "negative").Add(float64(len(corpora.Negative)))

	s := &strategy.LengthClusterStrategy{Mode: mode}
	sweepTimer := prometheus.NewTimer(metrics.SweepDuration.WithLabelValues("lengthcluster"))
	results, bestIdx, filter, err := s.Run(corpora.Positive, corpora.Negative, corpora.NegativeTotal)
	sweepTimer.ObserveDuration()
	metrics.ConfigsEvaluated.WithLabelValues("lengthcluster").Add(float64(len(results)))

	if errors.Is(err, strategy.ErrNoClassifiable) || errors.Is(err, strategy.ErrInsufficientData) {
		log.Printf("lengthcluster: no classifiable configuration: %v", err)
		metrics.NoClassifiableTotal.WithLabelValues("lengthcluster").Inc()
		fmt.Println("TPR=null FPR=null")
		if *csvOut != "" {
			writeCSV(*csvOut, results)
		}
		os.Exit(2)
	}
	if err != nil {
		log.Printf("fatal: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("lengthcluster").Inc()
		os.Exit(1)
	}

	// Report the config Run selected under the TPR-floor rule; a plain
	// score sort could surface a config below the floor, disagreeing
	// with the filter's blocked-IP set.
	best := results[bestIdx]
	metrics.BestScore.WithLabelValues("lengthcluster").Set(best.Score)

	fmt.Printf("best config: %s\n", best.Config)
	fmt.Printf("TPR=%.4f FPR=%.4f score=%.4f\n", best.TPR, best.FPR, best.Score)
	fmt.Printf("wireshark filter: %s\n", filter.String())

	if *csvOut != "" {
		strategy.StableSortByScoreDesc(results)
		writeCSV(*csvOut, results)
	}
}

func writeCSV(path string, results []strategy.Result[strategy.LengthClusterConfig]) {
	f, err := os.Create(path)
	rtx.Must(err, "creating csv_out")
	defer f.Close()

	rows := make([]runcli.CSVRow, len(results))
	for i, r := range results {
		rows[i] = runcli.CSVRow{Config: r.Config.String(), TPR: r.TPR, FPR: r.FPR, Score: r.Score}
	}
	rtx.Must(runcli.WriteCSV(f, rows), "writing csv_out")
}
