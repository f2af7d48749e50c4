package classifier

import "testing"

func linearSeparableData() ([][]float64, []int) {
	X := [][]float64{
		{2, 2}, {3, 3}, {2.5, 2.8}, {4, 1},
		{-2, -2}, {-3, -1}, {-2.5, -2.8}, {-1, -3},
	}
	y := []int{1, 1, 1, 1, 0, 0, 0, 0}
	return X, y
}

func TestNewRejectsUnsupportedLoss(t *testing.T) {
	if _, err := New("squared_hinge", 1); err != ErrUnsupportedLoss {
		t.Fatalf("got %v, want ErrUnsupportedLoss", err)
	}
}

func TestTrainAndPredictSeparable(t *testing.T) {
	clf, err := New("hinge", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	X, y := linearSeparableData()
	if err := clf.Train(X, y); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds, err := clf.Predict(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	correct := 0
	for i, p := range preds {
		if p == y[i] {
			correct++
		}
	}
	if correct < len(y)-1 {
		t.Fatalf("got %d/%d correct on separable training data, want at least %d", correct, len(y), len(y)-1)
	}
}

func TestTrainIsDeterministic(t *testing.T) {
	X, y := linearSeparableData()
	clf1, _ := New("hinge", 7)
	clf1.Train(X, y)
	clf2, _ := New("hinge", 7)
	clf2.Train(X, y)

	p1, _ := clf1.Predict(X)
	p2, _ := clf2.Predict(X)
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("predictions diverged at %d: %d vs %d for the same seed", i, p1[i], p2[i])
		}
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	clf, _ := New("hinge", 1)
	if _, err := clf.Predict([][]float64{{1, 2}}); err != ErrNotTrained {
		t.Fatalf("got %v, want ErrNotTrained", err)
	}
}

func TestTrainDimensionMismatch(t *testing.T) {
	clf, _ := New("hinge", 1)
	if err := clf.Train([][]float64{{1, 2}}, []int{0, 1}); err != ErrDimensionMismatch {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
}
