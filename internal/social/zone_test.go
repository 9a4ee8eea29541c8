package social

import (
	"sync"
	"testing"

	"github.com/talgya/wastewise/internal/config"
)

func testZone(households int) *Zone {
	cal := config.Default()
	return NewZone(0, config.ZoneSpec{
		Name:              "Test",
		Households:        households,
		LocalBudget:       400000,
		AllocationProfile: "standard",
	}, cal)
}

func TestUpdatePolicyStacksTopUpOnBaseline(t *testing.T) {
	z := testZone(100)
	z.UpdatePolicy(Funds{IEC: 1000, Enforcement: 2000, Incentive: 3000})

	// Quarterly local budget 100000 split 20/50/30.
	if z.Baseline.IEC != 20000 || z.Baseline.Enforcement != 50000 || z.Baseline.Incentive != 30000 {
		t.Fatalf("baseline: %+v", z.Baseline)
	}
	if z.Combined.IEC != 21000 || z.Combined.Enforcement != 52000 || z.Combined.Incentive != 33000 {
		t.Fatalf("combined: %+v", z.Combined)
	}
	if got := z.CashOnHand(); got != 33000 {
		t.Fatalf("cash on hand: %v", got)
	}
	if z.Incentive != 330 {
		t.Fatalf("incentive per household: %v", z.Incentive)
	}
	wantIEC := 21000.0 / (100 * 650)
	if z.IEC != wantIEC {
		t.Fatalf("iec intensity: got %v want %v", z.IEC, wantIEC)
	}
	wantEnf := 52000.0 / 375000
	if z.Enforcement != wantEnf {
		t.Fatalf("enforcement intensity: got %v want %v", z.Enforcement, wantEnf)
	}
	if got, want := z.AffordableEnforcers(), 52000/z.EnforcerCost; got != want {
		t.Fatalf("affordable enforcers: got %v want %v", got, want)
	}
	z.EnforcerCost = 0
	if got := z.AffordableEnforcers(); got != 0 {
		t.Fatalf("zero unit cost should afford nobody, got %v", got)
	}
}

func TestIntensitiesSaturate(t *testing.T) {
	z := testZone(10)
	z.UpdatePolicy(Funds{IEC: 1e7, Enforcement: 1e7})
	if z.IEC != 1 || z.Enforcement != 1 {
		t.Fatalf("intensities should cap at 1: iec=%v enf=%v", z.IEC, z.Enforcement)
	}
}

func TestEmptyZoneUsesFallbackSaturation(t *testing.T) {
	z := testZone(0)
	z.UpdatePolicy(Funds{})
	if want := 20000.0 / 375000; z.IEC != want {
		t.Fatalf("iec intensity: got %v want %v", z.IEC, want)
	}
	if z.Incentive != 0 {
		t.Fatalf("incentive value with no households: %v", z.Incentive)
	}
}

func TestNegativeTopUpIgnored(t *testing.T) {
	z := testZone(100)
	z.UpdatePolicy(Funds{IEC: -5000})
	if z.TopUp.IEC != 0 || z.Combined.IEC != z.Baseline.IEC {
		t.Fatalf("negative top-up leaked: %+v", z.TopUp)
	}
}

func TestGiveRewardNeverOverdraws(t *testing.T) {
	z := testZone(100)
	z.UpdatePolicy(Funds{})
	cash := z.CashOnHand()

	var wg sync.WaitGroup
	paid := make(chan bool, 400)
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid <- z.GiveReward(100)
		}()
	}
	wg.Wait()
	close(paid)

	n := 0
	for ok := range paid {
		if ok {
			n++
		}
	}
	if want := int(cash / 100); n != want {
		t.Fatalf("paid %d rewards, want %d", n, want)
	}
	if z.CashOnHand() < 0 {
		t.Fatalf("cash went negative: %v", z.CashOnHand())
	}
}

func TestRecordFineDoesNotTouchCash(t *testing.T) {
	z := testZone(100)
	z.UpdatePolicy(Funds{})
	before := z.CashOnHand()
	z.RecordFine(500)
	z.RecordFine(500)
	if z.CashOnHand() != before {
		t.Fatalf("fine changed cash: %v -> %v", before, z.CashOnHand())
	}
	if z.FinesIssued != 2 || z.FinesAmount != 1000 {
		t.Fatalf("fine stats: %d %v", z.FinesIssued, z.FinesAmount)
	}
}

func TestRefreshCompliance(t *testing.T) {
	z := testZone(4)
	z.RefreshCompliance([]bool{true, false, true, true})
	if z.Compliance != 0.75 || z.Compliant != 3 || z.Total != 4 {
		t.Fatalf("compliance: %+v", z)
	}
	z.RefreshCompliance(nil)
	if z.Compliance != 0 {
		t.Fatalf("empty zone compliance: %v", z.Compliance)
	}
}

func TestShares(t *testing.T) {
	z := testZone(100)
	z.UpdatePolicy(Funds{})
	s := z.Shares()
	if s.IEC != 20 || s.Enforcement != 50 || s.Incentive != 30 {
		t.Fatalf("shares: %+v", s)
	}
}
