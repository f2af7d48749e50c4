// Command sdgstrategy runs the windowed-feature SDG classifier
// detection strategy over a positive and a negative PCAP corpus.
// strategy_param is the per-group window size (default 25, floor 10).
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
	"github.com/vitus133/CovertMark/packet"
	"github.com/vitus133/CovertMark/pcappkt"
	"github.com/vitus133/CovertMark/strategy"
	"github.com/vitus133/CovertMark/tracestore"
)

var (
	metricsAddr = flag.String("metrics_addr", ":8082", "Address to serve /metrics on")
	csvOut      = flag.String("csv_out", "", "If set, write the (percentile, TPR, FPR) sweep CSV to this path")
	seed        = flag.Int64("seed", 42, "Deterministic RNG seed for shuffles, splits, and downsampling")
	recallPcap  = flag.String("recall_pcap", "", "If set, a third all-positive PCAP to report each retained classifier's recall on")
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

	windowSize := strategy.DefaultWindowSize
	if args.StrategyParam != "" {
		windowSize, err = strconv.Atoi(args.StrategyParam)
		rtx.Must(err, "strategy_param must be an integer window_size")
	}

	store := tracestore.NewMemStore()
	corpora, err := runcli.LoadCorpora(args, store, runcli.TCPTraces)
	if err != nil {
		log.Printf("fatal: loading corpora: %v", err)
		os.Exit(1)
	}
	metrics.PacketsLoaded.WithLabelValues("sdg", "positive").Add(float64(len(corpora.Positive)))
	metrics.PacketsLoaded.WithLabelValues("sdg", "negative").Add(float64(len(corpora.Negative)))

	// Log the seed with the run so any reported rate is reproducible.
	log.Printf("sdg: seed=%d window_size=%d", *seed, windowSize)

	s, err := strategy.NewSDGStrategy(windowSize, []string{args.PtSrc, args.PtDst}, *seed)
	rtx.Must(err, "invalid window size")

	sweepTimer := prometheus.NewTimer(metrics.SweepDuration.WithLabelValues("sdg"))
	results, err := s.Run(corpora.Positive, corpora.Negative)
	sweepTimer.ObserveDuration()
	metrics.ConfigsEvaluated.WithLabelValues("sdg").Add(float64(len(results)))

	if errors.Is(err, strategy.ErrNoClassifiable) || errors.Is(err, strategy.ErrInsufficientData) {
		log.Printf("sdg: no classifiable configuration: %v", err)
		metrics.NoClassifiableTotal.WithLabelValues("sdg").Inc()
		fmt.Println("TPR=null FPR=null")
		os.Exit(2)
	}
	if err != nil {
		log.Printf("fatal: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("sdg").Inc()
		os.Exit(1)
	}

	best := results[len(results)-1]
	for _, r := range results {
		if r.TPR >= best.TPR && r.FPR <= best.FPR {
			best = r
		}
	}
	metrics.BestScore.WithLabelValues("sdg").Set(best.TPR - best.FPR)

	fmt.Printf("best percentile=%.0f threshold=%d\n", best.Percentile, best.Threshold)
	fmt.Printf("TPR=%.4f FPR=%.4f\n", best.TPR, best.FPR)
	fmt.Printf("blocked IPs: %v\n", best.BlockedIPs)

	if *recallPcap != "" {
		runRecall(s, results, args, store)
	}

	if *csvOut != "" {
		writeCSV(*csvOut, results)
	}
}

// runRecall loads the third, all-positive corpus through the same PT
// filters and prints each retained classifier's recall on it.
func runRecall(s *strategy.SDGStrategy, results []strategy.SDGPercentileResult, args *runcli.Args, store tracestore.Store) {
	parser := pcappkt.NewParser()
	ptSubnet, err := packet.BuildSubnet(args.PtSrc)
	rtx.Must(err, "invalid pt_src")
	ptDstSubnet, err := packet.BuildSubnet(args.PtDst)
	rtx.Must(err, "invalid pt_dst")
	parser.SetIPFilter([]pcappkt.IPFilter{
		{Subnet: ptSubnet, Direction: pcappkt.DirSrc},
		{Subnet: ptDstSubnet, Direction: pcappkt.DirDst},
	})
	id, err := parser.LoadAndInsertNew(*recallPcap, args.PtCollection+"-recall", store)
	if err != nil {
		log.Printf("fatal: loading recall_pcap: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("sdg").Inc()
		os.Exit(1)
	}
	packets, err := store.Retrieve(id, nil)
	rtx.Must(err, "retrieving recall collection")

	recalls, err := s.Recall(results, packets)
	if errors.Is(err, strategy.ErrInsufficientData) {
		log.Printf("sdg: recall corpus produced no usable windows")
		return
	}
	rtx.Must(err, "computing recall")
	for i, r := range recalls {
		fmt.Printf("recall at percentile=%.0f: %.4f\n", results[i].Percentile, r)
	}
}

func writeCSV(path string, results []strategy.SDGPercentileResult) {
	f, err := os.Create(path)
	rtx.Must(err, "creating csv_out")
	defer f.Close()

	rows := make([]runcli.CSVRow, len(results))
	for i, r := range results {
		rows[i] = runcli.CSVRow{
			Config: fmt.Sprintf("percentile=%.0f threshold=%d", r.Percentile, r.Threshold),
			TPR:    r.TPR,
			FPR:    r.FPR,
		}
	}
	rtx.Must(runcli.WriteCSV(f, rows), "writing csv_out")
}
