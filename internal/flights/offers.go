package flights

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

var ancillaryOffers = []AncillaryOffer{
	{AncillaryCode: "SEAT-EX1A", AncillaryType: "SEAT", Description: "Exit Row Seat 1A", Price: 75, Currency: currency},
	{AncillaryCode: "SEAT-UPF2", AncillaryType: "SEAT", Description: "Up-Front Seat 2F", Price: 50, Currency: currency},
	{AncillaryCode: "BG23", AncillaryType: "BAGGAGE", Description: "1 Piece up to 23kg", Price: 120, Currency: currency},
	{AncillaryCode: "BG32", AncillaryType: "BAGGAGE", Description: "1 Piece up to 32kg", Price: 180, Currency: currency},
	{AncillaryCode: "MLVGML", AncillaryType: "MEAL", Description: "Vegetarian Meal", Price: 35, Currency: currency},
	{AncillaryCode: "MLSPML", AncillaryType: "MEAL", Description: "Seafood Meal", Price: 45, Currency: currency},
}

var redemptionOptions = []RedemptionOption{
	{RedemptionCode: "UPG-BUS", OptionType: "UPGRADE", Description: "Upgrade to Business Class on one segment", MilesRequired: 25000},
	{RedemptionCode: "PWM-100", OptionType: "PAY_WITH_MILES", Description: "Pay 100 AED of the total due with miles", MilesRequired: 10000},
	{RedemptionCode: "PWM-ALL", OptionType: "PAY_WITH_MILES", Description: "Pay the entire due amount with miles", MilesRequired: 45000},
}

var ancillaryEndpoint = endpoint{
	name:        "get_ancillary_offers",
	invalidMsg:  "Missing or invalid parameters. 'BookingReference' and 'FlightOptionIDs' (as a string) are required.",
	internalMsg: "An internal error occurred while fetching ancillary offers.",
}

var loyaltyEndpoint = endpoint{
	name:        "loyalty_redemption_options",
	invalidMsg:  "Missing required parameters. 'BookingReference' and 'QuoteID' are required.",
	internalMsg: "An internal error occurred while fetching loyalty options.",
}

// AncillaryOffers lists the seats, bags and meals sold with a change.
func (h *Handler) AncillaryOffers(w http.ResponseWriter, r *http.Request) {
	serve(h, ancillaryEndpoint, func(context.Context, *zap.Logger, *QuoteRequest) (any, error) {
		offers := make([]AncillaryOffer, len(ancillaryOffers))
		copy(offers, ancillaryOffers)
		return AncillaryOffersResponse{AncillaryOffers: offers}, nil
	})(w, r)
}

// LoyaltyOptions reports the miles a quote earns and how miles can pay for it.
func (h *Handler) LoyaltyOptions(w http.ResponseWriter, r *http.Request) {
	serve(h, loyaltyEndpoint, func(context.Context, *zap.Logger, *QuoteRefRequest) (any, error) {
		options := make([]RedemptionOption, len(redemptionOptions))
		copy(options, redemptionOptions)
		return LoyaltyResponse{
			MilesEarned:       MilesEarned{Economy: 2500, Business: 7500},
			RedemptionOptions: options,
		}, nil
	})(w, r)
}
