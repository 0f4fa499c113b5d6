package engine

// Scoring weights: urgency dominates, production time and cost split the
// rest as efficiency bonuses. Fixed design constants.
const (
	urgencyWeight = 0.4
	timeWeight    = 0.3
	costWeight    = 0.3
)

// Score ranks an order for the production queue; higher means produce
// sooner. The time component is 10-hours and deliberately unclamped: a
// product needing more than 10 hours drags the score negative, and the
// ranking depends on that tail, so it must not be "fixed".
//
// When costScaleMax is above 10 the cost is treated as a currency amount and
// normalised back onto the 0..10 bonus range; otherwise it is the abstract
// 1..10 scale and the bonus is simply 10-cost.
func Score(urgency int, productionHours, cost, costScaleMax float64) float64 {
	timeComponent := 10 - productionHours
	var costComponent float64
	if costScaleMax > 10 {
		costComponent = (costScaleMax - cost) / costScaleMax * 10
	} else {
		costComponent = 10 - cost
	}
	return float64(urgency)*urgencyWeight + timeComponent*timeWeight + costComponent*costWeight
}
