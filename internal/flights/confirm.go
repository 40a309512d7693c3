package flights

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	confirmationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	confirmationLength   = 6

	paymentFailedMsg = "Payment processing failed. Please try a different payment method."
)

var confirmEndpoint = endpoint{
	name:        "confirm_flight_change",
	invalidMsg:  "Missing required parameters. 'BookingReference' and 'QuoteID' are required.",
	internalMsg: "An internal error occurred during the flight change confirmation.",
}

// ConfirmChange books the quoted change. Quotes whose id contains FAIL
// simulate a declined payment.
func (h *Handler) ConfirmChange(w http.ResponseWriter, r *http.Request) {
	serve(h, confirmEndpoint, h.confirmChange)(w, r)
}

func (h *Handler) confirmChange(_ context.Context, logger *zap.Logger, req *QuoteRefRequest) (any, error) {
	if strings.Contains(strings.ToUpper(req.QuoteID), "FAIL") {
		logger.Warn("Simulating a failed confirmation", zap.String("quote_id", req.QuoteID))
		return ConfirmResponse{
			Status:             "FAILED",
			Message:            paymentFailedMsg,
			FinalAmountCharged: 0,
			Currency:           currency,
		}, nil
	}

	code := h.confirmationCode()
	return ConfirmResponse{
		Status:                "SUCCESS",
		NewConfirmationNumber: &code,
		Message:               fmt.Sprintf("Your flight change is confirmed. Your new confirmation number is %s.", code),
		FinalAmountCharged:    float64(h.intN(300) + 100),
		Currency:              currency,
	}, nil
}

func (h *Handler) confirmationCode() string {
	var b strings.Builder
	b.Grow(confirmationLength)
	for i := 0; i < confirmationLength; i++ {
		b.WriteByte(confirmationAlphabet[h.intN(len(confirmationAlphabet))])
	}
	return b.String()
}
