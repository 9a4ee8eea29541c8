package engine

import (
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/wastewise/internal/agents"
	"github.com/talgya/wastewise/internal/numeric"
	"github.com/talgya/wastewise/internal/social"
)

// ZoneReport is the per-zone snapshot emitted at every decision point.
type ZoneReport struct {
	Quarter int    `json:"quarter"`
	Tick    uint64 `json:"tick"`
	ZoneID  uint64 `json:"zone_id"`
	Zone    string `json:"zone"`

	TotalFunds float64 `json:"total_funds"`
	LGUFunds   float64 `json:"lgu_funds"`
	LGUShare   float64 `json:"lgu_share_pct"` // of the quarterly municipal pot
	LocalFunds float64 `json:"local_funds"`

	Funds  social.Funds `json:"funds"`
	Shares social.Funds `json:"shares_pct"`

	IECIntensity         float64 `json:"iec_intensity"`
	EnforcementIntensity float64 `json:"enforcement_intensity"`
	IncentiveValue       float64 `json:"incentive_value"`

	AvgAttitude float64 `json:"avg_attitude"`
	AvgNorm     float64 `json:"avg_norm"`
	AvgControl  float64 `json:"avg_control"`
	AvgUtility  float64 `json:"avg_utility"`

	Compliance      float64 `json:"compliance"`
	ActiveEnforcers int     `json:"active_enforcers"`
	Capital         float64 `json:"political_capital"`
}

// TickSample is the per-tick data-collection record.
type TickSample struct {
	Tick       uint64    `json:"tick"`
	Quarter    int       `json:"quarter"`
	Global     float64   `json:"global_compliance"`
	Zones      []float64 `json:"zones"`
	Capital    float64   `json:"political_capital"`
	Balance    float64   `json:"balance"`
	TotalFines float64   `json:"total_fines"`
	Enforcers  int       `json:"enforcers"`
}

// Status summarizes the run for the API and the CLI.
type Status struct {
	RunID           string  `json:"run_id,omitempty"`
	Tick            uint64  `json:"tick"`
	Horizon         uint64  `json:"horizon"`
	Quarter         int     `json:"quarter"`
	Terminated      bool    `json:"terminated"`
	Households      int     `json:"households"`
	Enforcers       int     `json:"enforcers"`
	Global          float64 `json:"global_compliance"`
	Capital         float64 `json:"political_capital"`
	Budget          Budget  `json:"budget"`
	BudgetExhausted bool    `json:"budget_exhausted"`
	TotalFines      float64 `json:"total_fines"`
	FineCount       int     `json:"fine_count"`
	Redemptions     int     `json:"redemptions"`
}

// zoneReport builds one zone's snapshot from its members.
func zoneReport(z *social.Zone, members []*agents.Household, quarterly float64) ZoneReport {
	r := ZoneReport{
		ZoneID:               z.ID,
		Zone:                 z.Name,
		TotalFunds:           z.Combined.Total(),
		LocalFunds:           z.LocalQuarterly,
		Funds:                z.Combined,
		Shares:               z.Shares(),
		IECIntensity:         z.IEC,
		EnforcementIntensity: z.Enforcement,
		IncentiveValue:       z.Incentive,
		Compliance:           z.Compliance,
		ActiveEnforcers:      z.ActiveEnforcer,
	}
	r.LGUFunds = max(0, r.TotalFunds-r.LocalFunds)
	r.LGUShare = 100 * numeric.SafeDiv(r.LGUFunds, quarterly)

	if len(members) > 0 {
		att := make([]float64, len(members))
		norm := make([]float64, len(members))
		ctl := make([]float64, len(members))
		util := make([]float64, len(members))
		for i, h := range members {
			att[i], norm[i], ctl[i], util[i] = h.Attitude, h.Norm, h.Control, h.Utility
		}
		r.AvgAttitude = stat.Mean(att, nil)
		r.AvgNorm = stat.Mean(norm, nil)
		r.AvgControl = stat.Mean(ctl, nil)
		r.AvgUtility = stat.Mean(util, nil)
	}
	return r
}
