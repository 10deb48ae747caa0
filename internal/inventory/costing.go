package inventory

import "math"

// Blend folds an incoming movement into a balance using the moving
// weighted-average method. For inbound quantities the new average is
//
//	(qty*avgCost + incomingQty*incomingCost) / (qty + incomingQty)
//
// rounded to 2 decimals. Outbound quantities are issued at the current
// average and leave it unchanged; a fully drained balance resets the
// average to zero.
//
// Blend is pure: receiving runs it inside its own locked transaction
// and writes the result through that transaction's repository.
func Blend(bal Balance, qty, unitCost float64) Balance {
	newQty := bal.Qty + qty
	if qty > 0 {
		if newQty > 0 {
			bal.AvgCost = Round2((bal.Qty*bal.AvgCost + qty*unitCost) / newQty)
		}
	} else {
		if math.Abs(newQty) < 0.0001 {
			newQty = 0
		}
		if newQty <= 0 {
			bal.AvgCost = 0
		}
	}
	bal.Qty = newQty
	return bal
}

// Round2 rounds to 2 decimal places, the precision every monetary
// value in the system is stored at.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
