// Package runcli holds the argument parsing and corpus-loading
// wiring shared by every strategy entry point under cmd/, keeping
// each cmd/*/main.go thin.
package runcli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"

	"github.com/vitus133/CovertMark/packet"
	"github.com/vitus133/CovertMark/pcappkt"
	"github.com/vitus133/CovertMark/tracestore"
)

// ErrWrongArgCount is returned by ParseArgs when the positional
// argument list isn't exactly 8 long.
var ErrWrongArgCount = errors.New("runcli: expected 8 positional arguments: <pt_pcap> <neg_pcap> <pt_src> <pt_dst> <neg_src> <pt_collection> <neg_collection> <strategy_param>")

// Args is the positional CLI contract every strategy entry point
// shares.
type Args struct {
	PtPcap        string
	NegPcap       string
	PtSrc         string
	PtDst         string
	NegSrc        string
	PtCollection  string
	NegCollection string
	StrategyParam string
}

// ParseArgs validates and names the 8 positional arguments a strategy
// entry point is invoked with.
func ParseArgs(positional []string) (*Args, error) {
	if len(positional) != 8 {
		return nil, ErrWrongArgCount
	}
	return &Args{
		PtPcap:        positional[0],
		NegPcap:       positional[1],
		PtSrc:         positional[2],
		PtDst:         positional[3],
		NegSrc:        positional[4],
		PtCollection:  positional[5],
		NegCollection: positional[6],
		StrategyParam: positional[7],
	}, nil
}

// Corpora is the loaded, filtered positive/negative packet sets and
// the negative corpus's full collection size (the FPR denominator
// strategies expect).
type Corpora struct {
	Positive      []packet.Packet
	Negative      []packet.Packet
	NegativeTotal int
}

// TCPTraces is the strategic load filter shared by the detection
// strategies, all of which examine TCP segments only; packets without
// a TCP layer never reach a strategy's sweep.
var TCPTraces = []tracestore.Predicate{{Field: "tcp", Op: tracestore.OpExists}}

// LoadCorpora parses both PCAP archives through a fresh pcappkt.Parser
// with the positional IP filters applied, inserts each into store
// under its named collection, and retrieves the loaded corpora back
// out through the strategic predicate filter, mirroring the
// round-trip a real trace-store-backed deployment would make. The
// NegativeTotal denominator is the collection's full count, taken
// before the strategic filter narrows the retrieved set.
func LoadCorpora(a *Args, store tracestore.Store, strategic []tracestore.Predicate) (*Corpora, error) {
	ptSubnet, err := packet.BuildSubnet(a.PtSrc)
	if err != nil {
		return nil, fmt.Errorf("runcli: invalid pt_src: %w", err)
	}
	ptDstSubnet, err := packet.BuildSubnet(a.PtDst)
	if err != nil {
		return nil, fmt.Errorf("runcli: invalid pt_dst: %w", err)
	}
	negSubnet, err := packet.BuildSubnet(a.NegSrc)
	if err != nil {
		return nil, fmt.Errorf("runcli: invalid neg_src: %w", err)
	}

	ptParser := pcappkt.NewParser()
	ptParser.SetIPFilter([]pcappkt.IPFilter{
		{Subnet: ptSubnet, Direction: pcappkt.DirSrc},
		{Subnet: ptDstSubnet, Direction: pcappkt.DirDst},
	})
	ptID, err := ptParser.LoadAndInsertNew(a.PtPcap, a.PtCollection, store)
	if err != nil {
		return nil, fmt.Errorf("runcli: loading pt_pcap: %w", err)
	}

	negParser := pcappkt.NewParser()
	negParser.SetIPFilter([]pcappkt.IPFilter{
		{Subnet: negSubnet, Direction: pcappkt.DirSrc},
	})
	negID, err := negParser.LoadAndInsertNew(a.NegPcap, a.NegCollection, store)
	if err != nil {
		return nil, fmt.Errorf("runcli: loading neg_pcap: %w", err)
	}

	positive, err := store.Retrieve(ptID, strategic)
	if err != nil {
		return nil, fmt.Errorf("runcli: retrieving pt collection: %w", err)
	}
	negative, err := store.Retrieve(negID, strategic)
	if err != nil {
		return nil, fmt.Errorf("runcli: retrieving neg collection: %w", err)
	}
	negTotal, err := store.Count(negID)
	if err != nil {
		return nil, fmt.Errorf("runcli: counting neg collection: %w", err)
	}

	log.Printf("loaded %d positive, %d negative (of %d total) packets", len(positive), len(negative), negTotal)
	return &Corpora{Positive: positive, Negative: negative, NegativeTotal: negTotal}, nil
}

// CSVRow is one (config, TPR, FPR, score) row of the per-strategy CSV
// export.
type CSVRow struct {
	Config string
	TPR    float64
	FPR    float64
	Score  float64
}

// WriteCSV renders rows as a header plus one line per row, in the order
// given, to w.
func WriteCSV(w io.Writer, rows []CSVRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"config", "tpr", "fpr", "score"}); err != nil {
		return fmt.Errorf("runcli: writing csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Config,
			strconv.FormatFloat(r.TPR, 'f', -1, 64),
			strconv.FormatFloat(r.FPR, 'f', -1, 64),
			strconv.FormatFloat(r.Score, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("runcli: writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("runcli: flushing csv: %w", err)
	}
	return nil
}
