package market

import (
	errorsmod "cosmossdk.io/errors"

	"datedVamm/internal/model"
)

func errorsIsLiquidity(err error) bool {
	return errorsmod.IsOf(err, model.ErrInsufficientLiquidity)
}

// rejectionReason maps an error to a short metric label.
func rejectionReason(err error) string {
	switch {
	case errorsmod.IsOf(err, model.ErrPaused):
		return "paused"
	case errorsmod.IsOf(err, model.ErrMaturityInactive):
		return "maturity_inactive"
	case errorsmod.IsOf(err, model.ErrPositionLimit):
		return "position_limit"
	case errorsmod.IsOf(err, model.ErrPriceBand):
		return "price_band"
	case errorsmod.IsOf(err, model.ErrLocked):
		return "locked"
	case errorsmod.IsOf(err, model.ErrUnauthorized):
		return "unauthorized"
	case errorsmod.IsOf(err, model.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	default:
		return "other"
	}
}
