package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_EnforcesBudgetPerClient(t *testing.T) {
	cl := NewClientLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !cl.Allow("1.2.3.4") {
			t.Fatalf("request %d within budget was denied", i)
		}
	}
	if cl.Allow("1.2.3.4") {
		t.Error("request beyond budget was allowed")
	}

	// Another client has its own budget.
	if !cl.Allow("5.6.7.8") {
		t.Error("independent client was throttled")
	}
}

func TestSweep_DropsIdleClients(t *testing.T) {
	cl := NewClientLimiter(3, time.Hour)

	cl.Allow("1.2.3.4")
	cl.Allow("5.6.7.8")

	if n := cl.Sweep(time.Hour); n != 0 {
		t.Errorf("recently seen clients were swept: %d", n)
	}
	if n := cl.Sweep(0); n != 2 {
		t.Errorf("expected 2 idle clients swept, got %d", n)
	}
}
