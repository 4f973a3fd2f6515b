package valuation

import "bookswap/internal/domain"

// Multipliers are kept in hundredths so the rule-based value is exact integer arithmetic.
var conditionFactor = map[string]int64{
	domain.ConditionNew:        150,
	domain.ConditionLikeNew:    130,
	domain.ConditionVeryGood:   110,
	domain.ConditionGood:       100,
	domain.ConditionAcceptable: 70,
}

func rarityFactor(similar int) int64 {
	switch {
	case similar <= 0:
		return 150
	case similar <= 2:
		return 130
	case similar <= 5:
		return 115
	case similar <= 10:
		return 100
	default:
		return 85
	}
}

func demandFactor(pending int) int64 {
	switch {
	case pending >= 10:
		return 150
	case pending >= 5:
		return 130
	case pending >= 3:
		return 115
	case pending >= 1:
		return 105
	default:
		return 100
	}
}

// RuleBased is the deterministic valuation:
// 100 x condition x rarity x demand, rounded to the nearest 10 and clamped to [50, 500].
// Unknown conditions count as GOOD.
func RuleBased(condition string, similarListings, pendingDemand int) int {
	c, ok := conditionFactor[condition]
	if !ok {
		c = 100
	}
	// 100 * (c/100) * (r/100) * (d/100) / 10, rounded half up.
	product := c * rarityFactor(similarListings) * demandFactor(pendingDemand)
	tens := (product + 50000) / 100000
	return clamp(int(tens * 10))
}

func clamp(points int) int {
	if points < domain.MinPointValue {
		return domain.MinPointValue
	}
	if points > domain.MaxPointValue {
		return domain.MaxPointValue
	}
	return points
}
