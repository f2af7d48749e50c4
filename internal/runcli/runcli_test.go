package runcli

import (
	"os"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/vitus133/CovertMark/tracestore"
)

func TestParseArgsRequiresEightArguments(t *testing.T) {
	if _, err := ParseArgs([]string{"a", "b"}); err != ErrWrongArgCount {
		t.Fatalf("got %v, want ErrWrongArgCount", err)
	}
}

func TestParseArgsOrdersFields(t *testing.T) {
	a, err := ParseArgs([]string{"pt.pcap", "neg.pcap", "1.1.1.0/24", "2.2.2.0/24", "3.3.3.0/24", "pt", "neg", "32"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.PtPcap != "pt.pcap" || a.NegSrc != "3.3.3.0/24" || a.StrategyParam != "32" {
		t.Fatalf("fields misordered: %+v", a)
	}
}

func writeEmptyPcap(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write fixture header: %v", err)
	}
}

func TestLoadCorporaEmptyCaptures(t *testing.T) {
	dir := t.TempDir()
	ptPath := dir + "/pt.pcap"
	negPath := dir + "/neg.pcap"
	writeEmptyPcap(t, ptPath)
	writeEmptyPcap(t, negPath)

	a := &Args{
		PtPcap: ptPath, NegPcap: negPath,
		PtSrc: "1.1.1.0/24", PtDst: "2.2.2.0/24", NegSrc: "3.3.3.0/24",
		PtCollection: "pt", NegCollection: "neg", StrategyParam: "32",
	}
	store := tracestore.NewMemStore()
	corpora, err := LoadCorpora(a, store, TCPTraces)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(corpora.Positive) != 0 || len(corpora.Negative) != 0 || corpora.NegativeTotal != 0 {
		t.Fatalf("expected empty corpora, got %+v", corpora)
	}
}

func TestLoadCorporaInvalidSubnet(t *testing.T) {
	dir := t.TempDir()
	ptPath := dir + "/pt.pcap"
	negPath := dir + "/neg.pcap"
	writeEmptyPcap(t, ptPath)
	writeEmptyPcap(t, negPath)

	a := &Args{
		PtPcap: ptPath, NegPcap: negPath,
		PtSrc: "not-a-cidr", PtDst: "2.2.2.0/24", NegSrc: "3.3.3.0/24",
		PtCollection: "pt", NegCollection: "neg", StrategyParam: "32",
	}
	store := tracestore.NewMemStore()
	if _, err := LoadCorpora(a, store, TCPTraces); err == nil {
		t.Fatalf("expected error for invalid pt_src subnet")
	}
}

func TestWriteCSVHeaderAndRows(t *testing.T) {
	var buf strings.Builder
	rows := []CSVRow{
		{Config: "block_size=16 p_threshold=0.10 criterion=1", TPR: 0.9, FPR: 0.1, Score: 4.2},
		{Config: "block_size=32 p_threshold=0.20 criterion=2", TPR: 0.8, FPR: 0.05, Score: 4.5},
	}
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "config,tpr,fpr,score\n") {
		t.Fatalf("missing expected header, got: %q", out)
	}
	if strings.Count(out, "\n") != 3 {
		t.Fatalf("expected header + 2 rows, got: %q", out)
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf strings.Builder
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "config,tpr,fpr,score\n" {
		t.Fatalf("expected header-only output, got: %q", buf.String())
	}
}
