package curriculum

import "testing"

func TestBandit_MasteredCategoryGetsZeroWeight(t *testing.T) {
	b := newBandit(0.05, 0.95, 0.3, nil)
	cat := &CategoryStats{Category: "pii"}
	b.updateCategory(cat, 0.96)
	b.updateCategory(cat, 0.97)
	if !cat.Mastered {
		t.Fatal("expected category to be mastered after two consecutive high pass rates")
	}

	weights := b.weights(map[string]*CategoryStats{"pii": cat}, nil)
	if weights["pii"] != 0 {
		t.Fatalf("expected zero weight for mastered category, got %v", weights["pii"])
	}
}

func TestBandit_SampleNeverDrawsMasteredCategory(t *testing.T) {
	b := newBandit(0.05, 0.95, 0.3, nil)
	mastered := &CategoryStats{Category: "mastered", Mastered: true}
	active := &CategoryStats{Category: "active", LearningProgress: 0.3}

	weights := b.weights(map[string]*CategoryStats{"mastered": mastered, "active": active}, nil)
	for i := 0; i < 20; i++ {
		picked := b.sample(weights, 1)
		if len(picked) == 1 && picked[0] == "mastered" {
			t.Fatal("mastered category was sampled")
		}
	}
}

func TestBandit_LearningProgressIsSmoothedTDError(t *testing.T) {
	b := newBandit(0.05, 0.95, 0.3, nil)
	cat := &CategoryStats{Category: "pii"}
	b.updateCategory(cat, 0.5)
	if cat.LearningProgress != 0.5 {
		t.Fatalf("expected first observation's LP to equal the raw TD-error, got %v", cat.LearningProgress)
	}
	b.updateCategory(cat, 0.6)
	want := 0.3*0.1 + 0.7*0.5
	if diff := cat.LearningProgress - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected smoothed LP %v, got %v", want, cat.LearningProgress)
	}
}
