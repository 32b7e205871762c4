package usage

// CentsPerHundredUnits fixes the linear unit -> money conversion:
// 1 cent per 100 units.
const CentsPerHundredUnits = 1

// CostInput describes one request for cost calculation (value type).
type CostInput struct {
	BaseUnits         int64   // endpoint's declared base cost, min 1
	PremiumMultiplier float64 // applied when the request is slow, min 1
	LatencyMs         int64
	SlowThresholdMs   int64
	StatusCode        int
	GatewayRejected   bool // rejected before any handler work ran
}

// Cost computes the unit and monetary cost of a request.
// This is a PURE function - identical inputs always produce identical
// outputs.
//
// Rules: start from the endpoint's base units; slow requests pay the
// endpoint's premium multiplier; 5xx responses halve the cost (floor 1)
// so tenants are not penalized for server-side failures; gateway-level
// rejections performed no work and cost nothing.
func Cost(in CostInput) (units int64, cents int64) {
	if in.GatewayRejected {
		return 0, 0
	}

	units = in.BaseUnits
	if units < 1 {
		units = 1
	}

	if in.SlowThresholdMs > 0 && in.LatencyMs > in.SlowThresholdMs {
		mult := in.PremiumMultiplier
		if mult < 1 {
			mult = 1
		}
		units = int64(float64(units) * mult)
	}

	if in.StatusCode >= 500 {
		units /= 2
		if units < 1 {
			units = 1
		}
	}

	return units, units * CentsPerHundredUnits / 100
}

// OverageCharges computes the billable overages for a period.
// This is a PURE function.
func OverageCharges(totalUnits, includedUnits, centsPerUnit, totalRequests, includedRequests int64) []OverageCharge {
	var charges []OverageCharge

	if includedUnits >= 0 && totalUnits > includedUnits && centsPerUnit > 0 {
		over := totalUnits - includedUnits
		charges = append(charges, OverageCharge{
			Kind:  ChargeUnitOverage,
			Units: over,
			Cents: over * centsPerUnit,
		})
	}

	if includedRequests >= 0 && totalRequests > includedRequests && centsPerUnit > 0 {
		over := totalRequests - includedRequests
		charges = append(charges, OverageCharge{
			Kind:  ChargeRequestOverage,
			Units: over,
			Cents: over * centsPerUnit,
		})
	}

	return charges
}
