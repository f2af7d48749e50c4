package strategy

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/vitus133/CovertMark/classifier"
	"github.com/vitus133/CovertMark/packet"
	"github.com/vitus133/CovertMark/traffic"
)

// NumRuns is the number of independent random splits evaluated per
// percentile in the dynamic threshold sweep.
const NumRuns = 5

// sdgTimeWindowMicros is the 60s time-window size both corpora are
// sliced into before grouping.
const sdgTimeWindowMicros = 60 * 1000000

// DefaultWindowSize and MinWindowSize are the fixed per-group window
// size default and floor.
const (
	DefaultWindowSize = 25
	MinWindowSize     = 10
)

var percentileSweep = []float64{0, 50, 75, 80, 85, 90}

// ErrInvalidWindowSize is returned by NewSDGStrategy for a window size
// below MinWindowSize.
var ErrInvalidWindowSize = errors.New("strategy: window size below minimum")

// sdgFeatureSelection is the fixed feature-selection tag set the SDG
// pipeline computes per window.
var sdgFeatureSelection = traffic.NewFeatureSelection(traffic.FeatureEntropy, traffic.FeatureTCPLen, traffic.FeaturePSH)

// sdgRow is one labelled, vectorised feature window.
type sdgRow struct {
	vector []float64
	peerIP string
	label  int // 1 positive, 0 negative.
}

// SDGPercentileResult is one percentile sweep point's best-of-NumRuns
// outcome. It retains the winning run's trained classifier and feature
// scaler so the recall phase can replay them on a fresh corpus.
type SDGPercentileResult struct {
	Percentile float64
	Threshold  int
	TPR        float64
	FPR        float64
	BlockedIPs []string

	clf        *classifier.SDG
	featMeans  []float64
	featStdevs []float64
}

// SDGStrategy builds per-window feature vectors, trains
// a hinge-loss linear classifier, and sweeps a dynamic per-peer
// occurrence threshold to decide which peers to block.
type SDGStrategy struct {
	WindowSize int
	SplitRatio float64 // training-set proportion, default 0.5.
	Seed       int64
	ClientIPs  []string // client subnets defining upstream/downstream.
}

// NewSDGStrategy returns a strategy configured with the given window
// size (default 25, floor 10) and client subnets.
func NewSDGStrategy(windowSize int, clientIPs []string, seed int64) (*SDGStrategy, error) {
	if windowSize < MinWindowSize {
		return nil, ErrInvalidWindowSize
	}
	return &SDGStrategy{WindowSize: windowSize, SplitRatio: 0.5, Seed: seed, ClientIPs: clientIPs}, nil
}

// buildRows synchronises the shorter corpus to the longer's start
// time, time-windows both at 60s, groups each time-window by
// client/peer at WindowSize, computes features under the fixed
// ENTROPY/TCP_LEN/PSH selection, and drops any window whose feature
// vector contains a non-finite value.
func (s *SDGStrategy) buildRows(positive, negative []packet.Packet) ([]sdgRow, error) {
	positive, negative, err := synchroniseLonger(positive, negative)
	if err != nil {
		return nil, err
	}

	var rows []sdgRow
	rows = append(rows, s.windowAndFeaturize(positive, 1)...)
	rows = append(rows, s.windowAndFeaturize(negative, 0)...)
	return rows, nil
}

// synchroniseLonger re-anchors the shorter-duration corpus (by first
// packet timestamp) to the start of the longer one.
func synchroniseLonger(positive, negative []packet.Packet) ([]packet.Packet, []packet.Packet, error) {
	if len(positive) == 0 || len(negative) == 0 {
		return positive, negative, nil
	}
	posSpan := traceSpan(positive)
	negSpan := traceSpan(negative)

	if posSpan >= negSpan {
		synced, err := traffic.Synchronise(negative, positive[0].TimeSecs, true)
		if err != nil {
			return nil, nil, err
		}
		return positive, synced, nil
	}
	synced, err := traffic.Synchronise(positive, negative[0].TimeSecs, true)
	if err != nil {
		return nil, nil, err
	}
	return synced, negative, nil
}

func traceSpan(packets []packet.Packet) float64 {
	minT, maxT := packets[0].TimeSecs, packets[0].TimeSecs
	for _, p := range packets {
		if p.TimeSecs < minT {
			minT = p.TimeSecs
		}
		if p.TimeSecs > maxT {
			maxT = p.TimeSecs
		}
	}
	return maxT - minT
}

func (s *SDGStrategy) windowAndFeaturize(packets []packet.Packet, label int) []sdgRow {
	timeWindows := traffic.WindowTime(packets, sdgTimeWindowMicros, true)

	clientSubnets, err := packet.SubnetsFromStrings(s.ClientIPs)
	if err != nil {
		return nil
	}

	var rows []sdgRow
	for _, tw := range timeWindows {
		grouped, err := traffic.GroupByClientFixed(tw, clientSubnets, s.WindowSize)
		if err != nil {
			continue
		}
		for _, windows := range grouped {
			for _, w := range windows {
				row, peers, _, err := traffic.WindowFeatures(w, s.ClientIPs, sdgFeatureSelection)
				if err != nil || !featureRowFinite(row) {
					continue
				}
				rows = append(rows, sdgRow{
					vector: traffic.ToVector(row),
					peerIP: firstPeer(peers),
					label:  label,
				})
			}
		}
	}
	return rows
}

func featureRowFinite(row traffic.FeatureRow) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func firstPeer(peers map[string]struct{}) string {
	ips := make([]string, 0, len(peers))
	for ip := range peers {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	if len(ips) == 0 {
		return ""
	}
	return ips[0]
}

// balance downsamples the larger class without replacement so both
// classes are equally represented.
func balance(rows []sdgRow, rng *rand.Rand) []sdgRow {
	var pos, neg []sdgRow
	for _, r := range rows {
		if r.label == 1 {
			pos = append(pos, r)
		} else {
			neg = append(neg, r)
		}
	}
	target := len(pos)
	if len(neg) < target {
		target = len(neg)
	}
	pos = shuffleRows(pos, rng)[:target]
	neg = shuffleRows(neg, rng)[:target]
	out := make([]sdgRow, 0, 2*target)
	out = append(out, pos...)
	out = append(out, neg...)
	return out
}

func shuffleRows(rows []sdgRow, rng *rand.Rand) []sdgRow {
	out := append([]sdgRow(nil), rows...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// standardize rescales every feature column to zero mean, unit
// variance, fit on the combined row set. It returns the fitted
// per-column means and standard deviations so the same scaling can be
// replayed on unseen rows during the recall phase.
func standardize(rows []sdgRow) (fitMeans, fitStdevs []float64) {
	if len(rows) == 0 {
		return nil, nil
	}
	dim := len(rows[0].vector)
	means := make([]float64, dim)
	for _, r := range rows {
		for i, v := range r.vector {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(len(rows))
	}

	stdevs := make([]float64, dim)
	for _, r := range rows {
		for i, v := range r.vector {
			d := v - means[i]
			stdevs[i] += d * d
		}
	}
	for i := range stdevs {
		stdevs[i] = math.Sqrt(stdevs[i] / float64(len(rows)))
		if stdevs[i] == 0 {
			stdevs[i] = 1
		}
	}

	for i := range rows {
		scaled := make([]float64, dim)
		for j, v := range rows[i].vector {
			scaled[j] = (v - means[j]) / stdevs[j]
		}
		rows[i].vector = scaled
	}
	return means, stdevs
}

// applyScaler rescales a vector with a previously fitted scaler.
func applyScaler(vector, means, stdevs []float64) []float64 {
	scaled := make([]float64, len(vector))
	for i, v := range vector {
		scaled[i] = (v - means[i]) / stdevs[i]
	}
	return scaled
}

// splitTrainValidation shuffle-splits rows into training/validation
// sets by ratio.
func splitTrainValidation(rows []sdgRow, ratio float64, rng *rand.Rand) (train, validation []sdgRow) {
	shuffled := shuffleRows(rows, rng)
	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:]
}

// runOnce performs one training/validation split, trains the
// classifier, and returns validation predictions alongside the rows
// they correspond to, plus the trained classifier itself.
func runOnce(rows []sdgRow, ratio float64, rng *rand.Rand, seed int64) ([]sdgRow, []int, *classifier.SDG, error) {
	train, validation := splitTrainValidation(rows, ratio, rng)
	if len(train) == 0 || len(validation) == 0 {
		return nil, nil, nil, ErrInsufficientData
	}

	clf, err := classifier.New("hinge", seed)
	if err != nil {
		return nil, nil, nil, err
	}
	X := make([][]float64, len(train))
	y := make([]int, len(train))
	for i, r := range train {
		X[i] = r.vector
		y[i] = r.label
	}
	if err := clf.Train(X, y); err != nil {
		return nil, nil, nil, err
	}

	Xv := make([][]float64, len(validation))
	for i, r := range validation {
		Xv[i] = r.vector
	}
	preds, err := clf.Predict(Xv)
	if err != nil {
		return nil, nil, nil, err
	}
	return validation, preds, clf, nil
}

// thresholdAndScore counts per-peer positive predictions, calibrates
// the occurrence threshold from the negative-corpus occurrence
// distribution at the given percentile, blocks any peer whose count
// exceeds it, and computes TPR/FPR from the resulting block decisions.
func thresholdAndScore(validation []sdgRow, preds []int, percentile float64) (SDGPercentileResult, error) {
	counts := make(map[string]int)
	negCounts := make(map[string]int)
	for i, r := range validation {
		if preds[i] != 1 {
			continue
		}
		counts[r.peerIP]++
		if r.label == 0 {
			negCounts[r.peerIP]++
		}
	}

	// Calibrate the threshold from the negative corpus's own
	// per-peer occurrence distribution: this bounds the block rule to
	// the false-positive rate observed in background traffic, rather
	// than letting concentrated positive traffic shift its own bar.
	var negValues []float64
	for _, c := range negCounts {
		negValues = append(negValues, float64(c))
	}
	var threshold int
	if len(negValues) > 0 {
		var p float64
		if percentile <= 0 {
			// stats.Percentile rejects a 0th percentile; it is the minimum.
			p = negValues[0]
			for _, v := range negValues[1:] {
				p = math.Min(p, v)
			}
		} else {
			var err error
			p, err = stats.Percentile(negValues, percentile)
			if err != nil {
				return SDGPercentileResult{}, err
			}
		}
		threshold = int(math.Floor(p))
	}

	blocked := make(map[string]struct{})
	for ip, c := range counts {
		if c > threshold {
			blocked[ip] = struct{}{}
		}
	}

	var tp, fn, fp, tn int
	for _, r := range validation {
		_, isBlocked := blocked[r.peerIP]
		switch {
		case r.label == 1 && isBlocked:
			tp++
		case r.label == 1 && !isBlocked:
			fn++
		case r.label == 0 && isBlocked:
			fp++
		case r.label == 0 && !isBlocked:
			tn++
		}
	}

	var tpr, fpr float64
	if tp+fn > 0 {
		tpr = float64(tp) / float64(tp+fn)
	}
	if fp+tn > 0 {
		fpr = float64(fp) / float64(fp+tn)
	}

	ips := make([]string, 0, len(blocked))
	for ip := range blocked {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	return SDGPercentileResult{Percentile: percentile, Threshold: threshold, TPR: tpr, FPR: fpr, BlockedIPs: ips}, nil
}

// Run executes the full pipeline: feature extraction, then for each
// percentile in the dynamic-threshold sweep, NumRuns independent
// balanced/standardised/split/trained/thresholded runs, keeping the
// lowest-FPR run per percentile. The sweep stops early once a
// percentile's best run has TPR < 0.75 or FPR < 0.001.
func (s *SDGStrategy) Run(positive, negative []packet.Packet) ([]SDGPercentileResult, error) {
	if s.SplitRatio <= 0 || s.SplitRatio >= 1 {
		return nil, ErrInvalidArgument
	}
	rows, err := s.buildRows(positive, negative)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrInsufficientData
	}
	// The feature rows carry everything the sweep needs; release the
	// packet slices so both corpora are collectable during the sweep.
	positive, negative = nil, nil

	rng := rand.New(rand.NewSource(s.Seed))

	var results []SDGPercentileResult
	for _, pct := range percentileSweep {
		var best SDGPercentileResult
		haveBest := false

		for run := 0; run < NumRuns; run++ {
			balanced := balance(rows, rng)
			means, stdevs := standardize(balanced)
			validation, preds, clf, err := runOnce(balanced, s.SplitRatio, rng, s.Seed+int64(run))
			if errors.Is(err, ErrInsufficientData) {
				continue
			}
			if err != nil {
				return nil, err
			}
			result, err := thresholdAndScore(validation, preds, pct)
			if err != nil {
				return nil, err
			}
			result.clf = clf
			result.featMeans = means
			result.featStdevs = stdevs
			if !haveBest || result.FPR < best.FPR {
				best = result
				haveBest = true
			}
		}
		if !haveBest {
			continue
		}
		results = append(results, best)

		if best.TPR < 0.75 || best.FPR < 0.001 {
			break
		}
	}

	if len(results) == 0 {
		return nil, ErrNoClassifiable
	}
	return results, nil
}

// Recall applies the same feature extraction to a third, all-positive
// corpus and reports each retained classifier's recall on it: the
// fraction of the corpus's windows predicted positive. Results are
// returned in the same order as the Run results they correspond to.
func (s *SDGStrategy) Recall(results []SDGPercentileResult, recall []packet.Packet) ([]float64, error) {
	rows := s.windowAndFeaturize(recall, 1)
	if len(rows) == 0 {
		return nil, ErrInsufficientData
	}

	out := make([]float64, len(results))
	for i, r := range results {
		if r.clf == nil {
			return nil, ErrInsufficientData
		}
		X := make([][]float64, len(rows))
		for j, row := range rows {
			X[j] = applyScaler(row.vector, r.featMeans, r.featStdevs)
		}
		preds, err := r.clf.Predict(X)
		if err != nil {
			return nil, err
		}
		hit := 0
		for _, p := range preds {
			if p == 1 {
				hit++
			}
		}
		out[i] = float64(hit) / float64(len(preds))
	}
	return out, nil
}
