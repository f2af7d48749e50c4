package entropy_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/vitus133/CovertMark/entropy"
)

func TestByteEntropyEmpty(t *testing.T) {
	if got := entropy.ByteEntropy(nil); got != 0 {
		t.Errorf("ByteEntropy(nil) = %v, want 0", got)
	}
}

func TestByteEntropySingleSymbol(t *testing.T) {
	b := bytes.Repeat([]byte{'A'}, 1024)
	if got := entropy.ByteEntropy(b); got != 0 {
		t.Errorf("ByteEntropy(repeated) = %v, want 0", got)
	}
}

func TestByteEntropyUniformHigh(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	b := make([]byte, 1024)
	r.Read(b)
	got := entropy.ByteEntropy(b)
	if got <= 7.5 || got > 8 {
		t.Errorf("ByteEntropy(random) = %v, want in (7.5, 8]", got)
	}
}

func TestByteEntropyBounds(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		b := make([]byte, 1+r.Intn(500))
		r.Read(b)
		got := entropy.ByteEntropy(b)
		if got < 0 || got > 8 {
			t.Errorf("ByteEntropy() = %v out of [0,8]", got)
		}
	}
}

func TestKSUniformInsufficientData(t *testing.T) {
	_, err := entropy.KolmogorovSmirnovUniformTest([]byte{1, 2, 3})
	if err != entropy.ErrInsufficientData {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestKSUniformRandomHighP(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	b := make([]byte, 2048)
	r.Read(b)
	p, err := entropy.KolmogorovSmirnovUniformTest(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p < 0.1 {
		t.Errorf("p = %v, want >= 0.1 for uniform random bytes", p)
	}
}

func TestKSUniformConstantLowP(t *testing.T) {
	b := bytes.Repeat([]byte{'A'}, 2048)
	p, err := entropy.KolmogorovSmirnovUniformTest(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p >= 0.1 {
		t.Errorf("p = %v, want < 0.1 for constant byte payload", p)
	}
}

func TestKSDistInsufficientData(t *testing.T) {
	_, err := entropy.KolmogorovSmirnovDistTest(make([]byte, 10), 32)
	if err != entropy.ErrInsufficientData {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestKSDistRandomHighP(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	b := make([]byte, 2048)
	r.Read(b)
	p, err := entropy.KolmogorovSmirnovDistTest(b, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p < 0.1 {
		t.Errorf("p = %v, want >= 0.1 for random bytes", p)
	}
}

func TestKSDistConstantLowP(t *testing.T) {
	b := bytes.Repeat([]byte{'A'}, 2048)
	p, err := entropy.KolmogorovSmirnovDistTest(b, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p >= 0.1 {
		t.Errorf("p = %v, want < 0.1 for constant byte payload", p)
	}
}

func TestAndersonDarlingInsufficientData(t *testing.T) {
	_, err := entropy.AndersonDarlingDistTest(make([]byte, 10), 32)
	if err != entropy.ErrInsufficientData {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestAndersonDarlingRandomHighThreshold(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	b := make([]byte, 2048)
	r.Read(b)
	res, err := entropy.AndersonDarlingDistTest(b, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MinThreshold < 0.1 {
		t.Errorf("MinThreshold = %v, want >= 0.1 for random bytes", res.MinThreshold)
	}
}

func TestAndersonDarlingConstantZeroThreshold(t *testing.T) {
	b := bytes.Repeat([]byte{'A'}, 2048)
	res, err := entropy.AndersonDarlingDistTest(b, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MinThreshold != 0 {
		t.Errorf("MinThreshold = %v, want 0 for constant byte payload", res.MinThreshold)
	}
}
