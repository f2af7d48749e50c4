// Package strategy implements the shared detection-strategy framework:
// error kinds, hyperparameter-sweep config scoring, the blocked-IP
// Wireshark filter builder, and a parallel sweep harness. The concrete
// strategies (entropy-distribution, length-clustering, SDG) each
// implement their own positive/negative run logic on top of this
// framework; see entropy.go, lengthcluster.go, sdg.go.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidArgument covers bad window sizes, non-finite target times,
// and out-of-range ratios passed to a strategy or its collaborators.
var ErrInvalidArgument = errors.New("strategy: invalid argument")

// ErrInsufficientData covers a statistical test given too few samples,
// or zero traces remaining after filtering.
var ErrInsufficientData = errors.New("strategy: insufficient data")

// ErrNoClassifiable is a non-fatal result: no configuration in the
// sweep satisfied the strategy's minimum-TPR floor. Callers should
// report null rates rather than treat this as a fatal run failure.
var ErrNoClassifiable = errors.New("strategy: no classifiable configuration")

// ErrCollaboratorFailure wraps a reported failure from the PCAP parser
// or trace-store collaborator.
var ErrCollaboratorFailure = errors.New("strategy: collaborator failure")

// rateEpsilon is the tolerance used when comparing TPR/FPR values for
// equality during tie-breaking.
const rateEpsilon = 1e-9

// Result is one hyperparameter configuration's measured outcome.
type Result[C any] struct {
	Config C
	TPR    float64
	FPR    float64
	Score  float64
}

// Sweep runs positiveRun/negativeRun for every config in configs,
// concurrently (bounded by a worker pool), and returns one Result per
// config in input order. Each config's two runs are independent given
// the read-only packet arrays the caller closes over, so they may run
// in any order relative to each other.
func Sweep[C any](configs []C, positiveRun, negativeRun func(C) (float64, error)) ([]Result[C], error) {
	results := make([]Result[C], len(configs))
	var g errgroup.Group
	g.SetLimit(8)

	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			tpr, err := positiveRun(cfg)
			if err != nil {
				return fmt.Errorf("config %d: %w", i, err)
			}
			fpr, err := negativeRun(cfg)
			if err != nil {
				return fmt.Errorf("config %d: %w", i, err)
			}
			results[i] = Result[C]{Config: cfg, TPR: tpr, FPR: fpr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScoreConfigs fills in Score for every result: best-TPR and
// best-FPR configs anchor two exponential-reward terms, weighted by w
// (0.5 for an even split) and reduced by a per-config penalty.
func ScoreConfigs[C any](results []Result[C], penalty func(C) float64, w float64) {
	if len(results) == 0 {
		return
	}
	bestTPR := results[0].TPR
	bestFPR := results[0].FPR
	for _, r := range results {
		if r.TPR > bestTPR {
			bestTPR = r.TPR
		}
		if r.FPR < bestFPR {
			bestFPR = r.FPR
		}
	}
	for i := range results {
		scoreTP := rewardScore(bestTPR, results[i].TPR)
		scoreFP := rewardScore(bestFPR, results[i].FPR)
		results[i].Score = (1-w)*scoreTP + w*scoreFP - penalty(results[i].Config)
	}
}

// rewardScore is ln(1+100) - ln(1+100*|best-actual|), the exponential
// reward used for both the TPR and FPR scoring terms.
func rewardScore(best, actual float64) float64 {
	return math.Log(101) - math.Log(1+100*math.Abs(best-actual))
}

// SelectBest returns the index of the highest-scoring result, breaking
// ties by lower FPR and then by input (natural config-tuple) order.
func SelectBest[C any](results []Result[C]) int {
	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[best].Score+rateEpsilon {
			best = i
			continue
		}
		if math.Abs(results[i].Score-results[best].Score) <= rateEpsilon && results[i].FPR < results[best].FPR-rateEpsilon {
			best = i
		}
	}
	return best
}

// StableSortByScoreDesc sorts results by score descending, stable on
// ties.
func StableSortByScoreDesc[C any](results []Result[C]) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// WireSharkFilter builds a Wireshark-compatible display filter
// reconstructing a block decision.
type WireSharkFilter struct {
	ExcludeTLS  bool
	IncludeHTTP bool
	MinTCPLen   int // 0 means no length clause.
	BlockedIPs  []string
}

// String renders the filter expression. An empty BlockedIPs list
// renders with no IP clause at all.
func (f WireSharkFilter) String() string {
	var clauses []string
	if f.ExcludeTLS {
		clauses = append(clauses, "!ssl")
	}
	if f.IncludeHTTP {
		clauses = append(clauses, "http")
	}
	if f.MinTCPLen > 0 {
		clauses = append(clauses, fmt.Sprintf("tcp_len >= %d", f.MinTCPLen))
	}
	if len(f.BlockedIPs) > 0 {
		ips := append([]string(nil), f.BlockedIPs...)
		sort.Strings(ips)
		var ipClauses []string
		for _, ip := range ips {
			ipClauses = append(ipClauses, fmt.Sprintf("ip.dst_host == %q", ip))
		}
		clauses = append(clauses, "("+strings.Join(ipClauses, " || ")+")")
	}
	return strings.Join(clauses, " && ")
}
