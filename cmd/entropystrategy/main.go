// Command entropystrategy runs the entropy-distribution detection
// strategy over a positive and a negative PCAP corpus.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitus133/CovertMark/internal/runcli"
	"github.com/vitus133/CovertMark/metrics"
	"github.com/vitus133/CovertMark/strategy"
	"github.com/vitus133/CovertMark/tracestore"
)

var (
	metricsAddr = flag.String("metrics_addr", ":8080", "Address to serve /metrics on")
	csvOut      = flag.String("csv_out", "", "If set, write the (config, TPR, FPR, score) sweep CSV to this path")
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
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

	protocolMinLength, err := strconv.Atoi(args.StrategyParam)
	rtx.Must(err, "strategy_param must be an integer protocol_min_length")

	store := tracestore.NewMemStore()
	corpora, err := runcli.LoadCorpora(args, store, runcli.TCPTraces)
	if err != nil {
		log.Printf("fatal: loading corpora: %v", err)
		os.Exit(1)
	}
	metrics.PacketsLoaded.WithLabelValues("entropy", "positive").Add(float64(len(corpora.Positive)))
	metrics.PacketsLoaded.WithLabelValues("entropy", "negative").Add(float64(len(corpora.Negative)))

	s := &strategy.EntropyDistStrategy{ProtocolMinLength: protocolMinLength}
	sweepTimer := prometheus.NewTimer(metrics.SweepDuration.WithLabelValues("entropy"))
	results, bestIdx, filter, err := s.Run(corpora.Positive, corpora.Negative, corpora.NegativeTotal)
	sweepTimer.ObserveDuration()
	metrics.ConfigsEvaluated.WithLabelValues("entropy").Add(float64(len(results)))

	if errors.Is(err, strategy.ErrNoClassifiable) || errors.Is(err, strategy.ErrInsufficientData) {
		log.Printf("entropy: no classifiable configuration: %v", err)
		metrics.NoClassifiableTotal.WithLabelValues("entropy").Inc()
		fmt.Println("TPR=null FPR=null")
		os.Exit(2)
	}
	if err != nil {
		log.Printf("fatal: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("entropy").Inc()
		os.Exit(1)
	}

	// Report the config Run selected; its blocked-IP filter was built
	// for exactly this config.
	best := results[bestIdx]
	metrics.BestScore.WithLabelValues("entropy").Set(best.Score)

	fmt.Printf("best config: %s\n", best.Config)
	fmt.Printf("TPR=%.4f FPR=%.4f score=%.4f\n", best.TPR, best.FPR, best.Score)
	fmt.Printf("wireshark filter: %s\n", filter.String())

	if *csvOut != "" {
		strategy.StableSortByScoreDesc(results)
		writeCSV(*csvOut, results)
	}
}

func writeCSV(path string, results []strategy.Result[strategy.EntropyConfig]) {
	f, err := os.Create(path)
	rtx.Must(err, "creating csv_out")
	defer f.Close()

	rows := make([]runcli.CSVRow, len(results))
	for i, r := range results {
		rows[i] = runcli.CSVRow{Config: r.Config.String(), TPR: r.TPR, FPR: r.FPR, Score: r.Score}
	}
	rtx.Must(runcli.WriteCSV(f, rows), "writing csv_out")
}
