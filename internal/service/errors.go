package service

import "errors"

var (
	// ErrUnknownTariff means the payment references a tariff id that is
	// not in the catalog.
	ErrUnknownTariff = errors.New("unknown tariff")

	// ErrNotOwned means a renewal targets a server belonging to someone
	// else.
	ErrNotOwned = errors.New("server not owned by payer")

	// ErrLimitReached means the owner already runs the maximum number of
	// servers.
	ErrLimitReached = errors.New("server limit reached")

	// ErrCooldown means the owner created too many payment intents in
	// the rate window.
	ErrCooldown = errors.New("too many payment attempts")

	// ErrProviderDisabled means the requested gateway is not configured.
	ErrProviderDisabled = errors.New("payment provider disabled")

	// ErrPromoInvalid means the promo code does not exist, was turned
	// off, or expired.
	ErrPromoInvalid = errors.New("promo code invalid or expired")

	// ErrPromoExhausted means the code hit its activation limit.
	ErrPromoExhausted = errors.New("promo code activation limit reached")

	// ErrPromoNotApplicable means the code is restricted to other
	// tariffs or to the other payment currency.
	ErrPromoNotApplicable = errors.New("promo code not applicable to this purchase")

	// ErrPromoAlreadyUsed means a one-per-user code was redeemed by this
	// owner before.
	ErrPromoAlreadyUsed = errors.New("promo code already used")
)
