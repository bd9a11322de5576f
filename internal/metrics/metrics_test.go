package metrics

import "testing"

func TestNewCollectorAssignsSessionID(t *testing.T) {
	c := NewCollector(0.2)
	if c.SessionID() == "" {
		t.Fatal("SessionID() = \"\", want non-empty")
	}

	other := NewCollector(0.2)
	if other.SessionID() == c.SessionID() {
		t.Fatal("two Collectors minted the same SessionID")
	}
}

func TestObserveSmooths(t *testing.T) {
	c := NewCollector(0.5)

	first := c.Observe(100)
	if first != 100 {
		t.Errorf("first Observe() = %v, want 100 (seeds the EMA)", first)
	}

	second := c.Observe(200)
	if second != 150 {
		t.Errorf("second Observe() = %v, want 150 (0.5*200 + 0.5*100)", second)
	}
}

func TestObserveTracksLastAndMaxEMA(t *testing.T) {
	c := NewCollector(0.5)

	c.Observe(100)
	if c.Last() != 100 {
		t.Errorf("Last() = %v, want 100", c.Last())
	}
	if c.MaxEMA() != 100 {
		t.Errorf("MaxEMA() = %v, want 100 after the first observation", c.MaxEMA())
	}

	c.Observe(50)
	if c.Last() != 50 {
		t.Errorf("Last() = %v, want 50", c.Last())
	}
	if c.MaxEMA() != 75 {
		t.Errorf("MaxEMA() = %v, want 75 (0.5*50 + 0.5*100, decaying toward the lower sample)", c.MaxEMA())
	}

	c.Observe(1000)
	if c.MaxEMA() != 1000 {
		t.Errorf("MaxEMA() = %v, want 1000 (snaps up immediately on a new peak)", c.MaxEMA())
	}
}

func TestNewCollectorClampsBadAlpha(t *testing.T) {
	c := NewCollector(0)
	if c.emaAlpha != 0.1 {
		t.Errorf("emaAlpha = %v, want default 0.1 for alpha<=0", c.emaAlpha)
	}

	c = NewCollector(2)
	if c.emaAlpha != 0.1 {
		t.Errorf("emaAlpha = %v, want default 0.1 for alpha>1", c.emaAlpha)
	}
}
