package signals

import "testing"

func TestTrendFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current, prior int
		wantTrend      string
		wantChange     float64
	}{
		{12, 10, TrendRising, 20},
		{5, 10, TrendDeclining, -50},
		{11, 10, TrendStable, 10},
		{9, 10, TrendStable, -10},
		{10, 10, TrendStable, 0},
		{3, 0, TrendRising, 100},
		{0, 10, TrendDeclining, -100},
		{0, 0, TrendStable, 0},
	}
	for _, tc := range cases {
		trend, change := TrendFor(tc.current, tc.prior)
		if trend != tc.wantTrend {
			t.Fatalf("TrendFor(%d, %d) trend = %s, want %s", tc.current, tc.prior, trend, tc.wantTrend)
		}
		if diff := change - tc.wantChange; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("TrendFor(%d, %d) change = %f, want %f", tc.current, tc.prior, change, tc.wantChange)
		}
	}
}

func TestTrendForBandIsSymmetric(t *testing.T) {
	t.Parallel()

	// Exactly +10% and -10% both land on stable; just past the band flips.
	if trend, _ := TrendFor(110, 100); trend != TrendStable {
		t.Fatalf("+10%% should be stable, got %s", trend)
	}
	if trend, _ := TrendFor(90, 100); trend != TrendStable {
		t.Fatalf("-10%% should be stable, got %s", trend)
	}
	if trend, _ := TrendFor(111, 100); trend != TrendRising {
		t.Fatalf("+11%% should be rising, got %s", trend)
	}
	if trend, _ := TrendFor(89, 100); trend != TrendDeclining {
		t.Fatalf("-11%% should be declining, got %s", trend)
	}
}

func TestComputeMomentumMergesWindows(t *testing.T) {
	t.Parallel()

	current := map[string]int{"funding": 8, "product": 4, "regulation": 2}
	prior := map[string]int{"funding": 4, "product": 4, "personnel": 3}

	entries := ComputeMomentum(current, prior)
	if len(entries) != 4 {
		t.Fatalf("expected union of categories, got %d entries", len(entries))
	}

	byCategory := map[string]Momentum{}
	for _, e := range entries {
		byCategory[e.Category] = e
	}
	if byCategory["funding"].Trend != TrendRising {
		t.Fatalf("funding should be rising, got %s", byCategory["funding"].Trend)
	}
	if byCategory["product"].Trend != TrendStable {
		t.Fatalf("product should be stable, got %s", byCategory["product"].Trend)
	}
	if byCategory["personnel"].Trend != TrendDeclining {
		t.Fatalf("personnel should be declining, got %s", byCategory["personnel"].Trend)
	}
	if byCategory["personnel"].Change != -100 {
		t.Fatalf("personnel change = %f, want -100", byCategory["personnel"].Change)
	}
	if byCategory["regulation"].Trend != TrendRising {
		t.Fatalf("regulation should be rising, got %s", byCategory["regulation"].Trend)
	}
	if byCategory["regulation"].Change != 100 {
		t.Fatalf("regulation change = %f, want 100", byCategory["regulation"].Change)
	}

	// Most active categories first.
	if entries[0].Category != "funding" {
		t.Fatalf("expected funding first, got %s", entries[0].Category)
	}
}
