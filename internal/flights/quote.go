package flights

import (
	"context"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	changeFee    = 150.0
	taxRate      = 0.15
	waiverReason = "Gold Tier Benefit"
)

var quoteEndpoint = endpoint{
	name:        "flight_change_quote",
	invalidMsg:  "Missing or invalid parameters. 'BookingReference' and 'FlightOptionIDs' (as a string) are required.",
	internalMsg: "An internal error occurred while generating the quote.",
}

// Quote prices a change of the booking to the given flight options.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	serve(h, quoteEndpoint, h.quote)(w, r)
}

func (h *Handler) quote(_ context.Context, logger *zap.Logger, req *QuoteRequest) (any, error) {
	logger.Debug("Parsed flight option ids", zap.Strings("flight_option_ids", strings.Split(req.FlightOptionIDs, ",")))

	fare := float64(fareDifference(req.BookingReference, req.FlightOptionIDs))
	taxes := fare * taxRate

	fee := changeFee
	waiver := FeeWaiver{}
	if isElite(req.BookingReference) {
		fee = 0
		reason := waiverReason
		waiver = FeeWaiver{IsWaived: true, Reason: &reason}
	}

	return QuoteResponse{
		QuoteID:            "QUOTE-" + h.newID(),
		FareDifference:     round2(fare),
		ChangeFee:          round2(fee),
		TaxesAndSurcharges: round2(taxes),
		TotalDue:           round2(fare + fee + taxes),
		Currency:           currency,
		FeeWaiver:          waiver,
	}, nil
}

// fareDifference is 50 plus the byte sum of both inputs modulo 201, so the
// same booking and options always get the same price.
func fareDifference(bookingReference, flightOptionIDs string) int {
	return 50 + (byteSum(bookingReference)+byteSum(flightOptionIDs))%201
}

func byteSum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return sum
}

func isElite(bookingReference string) bool {
	ref := strings.ToUpper(bookingReference)
	return strings.Contains(ref, "GOLD") || strings.Contains(ref, "PLATINUM")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
