package core

// Equilibrium returns the price step at which the aggregated demand clears.
//
// Parameters:
//   - aggregated: Sum of all demand curves connected to the root matcher
//
// Returns:
//   - The first price step, scanning from the lowest price upwards, whose demand is <= 0
//
// Boundary behaviour:
//  1. Demand already <= 0 at step 0 (supply surplus): step 0
//  2. Demand positive at every step (scarcity): the last step
//  3. A flat plateau of zero demand clears at its lowest step
//
// The result is always one of the discrete steps; there is no interpolation.
func Equilibrium(aggregated Bid) int {
	demand := aggregated.demand
	for step, d := range demand {
		if d <= 0 {
			return step
		}
	}
	if len(demand) == 0 {
		return 0
	}
	return len(demand) - 1
}

// ClearMarket runs Equilibrium and returns the clearing price on the bid's basis.
func ClearMarket(aggregated Bid) Price {
	return NewPriceFromStep(aggregated.basis, Equilibrium(aggregated))
}
