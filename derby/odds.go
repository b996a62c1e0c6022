package derby

import "math"

// houseMargin is the tavern's cut of the total pool.
const houseMargin = 0.15

// Odds computes the pari-mutuel payout multiplier for a bug from the current
// pools. With no pool at all every bug pays 2.0. A bug nobody backed gets a
// virtual odds against an assumed small pool, clamped to [2.0, 10.0]. Backed
// bugs pay availablePool/pool clamped to [1.1, 10.0]. Rounded to 2 decimals.
func Odds(bugID string, players []PlayerBet, npcBets []NpcBet) float64 {
	totalPool := 0
	bugPool := 0
	for _, p := range players {
		totalPool += p.BetAmount
		if p.BugID == bugID {
			bugPool += p.BetAmount
		}
	}
	for _, n := range npcBets {
		totalPool += n.Amount
		if n.BugID == bugID {
			bugPool += n.Amount
		}
	}

	if totalPool == 0 {
		return 2.0
	}

	availablePool := float64(totalPool) * (1 - houseMargin)

	if bugPool == 0 {
		virtual := availablePool / math.Max(5, float64(totalPool)*0.05)
		return math.Min(10.0, math.Max(2.0, round2(virtual)))
	}

	odds := availablePool / float64(bugPool)
	if odds < 1.1 {
		odds = 1.1
	}
	if odds > 10.0 {
		odds = 10.0
	}
	return round2(odds)
}

// Payout is the winner's credit for a bet at the given odds.
func Payout(bet int, odds float64) int {
	return int(math.Floor(float64(bet) * odds))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
