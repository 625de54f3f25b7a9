package service

import (
	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// pnl computes one side's profit and loss: (exit − entry) × stake. Both
// sides are long the pair; entering low and exiting high is a gain.
func pnl(entry, exit, stake decimal.Decimal) decimal.Decimal {
	return exit.Sub(entry).Mul(stake)
}

// ComputeOutcome derives the settlement outcome from a fully priced
// challenge. It returns domain.ErrIncompleteData when any of the four price
// observations is missing. An exact PnL tie declares no winner; both PnL
// values are still recorded.
func ComputeOutcome(ch domain.Challenge) (domain.SettlementOutcome, error) {
	if ch.CreatorEntry == nil || ch.CreatorExit == nil ||
		ch.AcceptorEntry == nil || ch.AcceptorExit == nil || ch.AcceptorID == nil {
		return domain.SettlementOutcome{}, domain.ErrIncompleteData
	}

	out := domain.SettlementOutcome{
		CreatorPnL:  pnl(*ch.CreatorEntry, *ch.CreatorExit, ch.Stake),
		AcceptorPnL: pnl(*ch.AcceptorEntry, *ch.AcceptorExit, ch.Stake),
	}

	switch out.CreatorPnL.Cmp(out.AcceptorPnL) {
	case 1:
		id := ch.CreatorID
		out.WinnerID = &id
	case -1:
		id := *ch.AcceptorID
		out.WinnerID = &id
	}
	return out, nil
}

// ComputeTimeoutOutcome derives the outcome for a challenge whose trading
// deadline has passed. Policy: a side that never completed its prices
// forfeits, recording −stake as its PnL, and the complete side wins with its
// computed PnL. When neither side is complete the challenge voids (stakes
// are returned) and the second return value is true.
func ComputeTimeoutOutcome(ch domain.Challenge) (domain.SettlementOutcome, bool) {
	if ch.AcceptorID == nil {
		return domain.SettlementOutcome{}, true
	}

	creatorDone := ch.SideComplete(domain.PartyCreator)
	acceptorDone := ch.SideComplete(domain.PartyAcceptor)

	switch {
	case creatorDone && acceptorDone:
		out, err := ComputeOutcome(ch)
		if err != nil {
			// Unreachable given both sides are complete.
			return domain.SettlementOutcome{}, true
		}
		return out, false

	case creatorDone:
		id := ch.CreatorID
		return domain.SettlementOutcome{
			CreatorPnL:  pnl(*ch.CreatorEntry, *ch.CreatorExit, ch.Stake),
			AcceptorPnL: ch.Stake.Neg(),
			WinnerID:    &id,
		}, false

	case acceptorDone:
		id := *ch.AcceptorID
		return domain.SettlementOutcome{
			CreatorPnL:  ch.Stake.Neg(),
			AcceptorPnL: pnl(*ch.AcceptorEntry, *ch.AcceptorExit, ch.Stake),
			WinnerID:    &id,
		}, false
	}

	return domain.SettlementOutcome{}, true
}
