package flights

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type scheduledFlight struct {
	hour, minute  int
	duration      time.Duration
	economyPrice  float64
	businessPrice float64
}

var schedule = []scheduledFlight{
	{hour: 8, minute: 30, duration: 5 * time.Hour, economyPrice: 450, businessPrice: 1200},
	{hour: 14, minute: 0, duration: 5*time.Hour + 30*time.Minute, economyPrice: 500, businessPrice: 1300},
	{hour: 19, minute: 15, duration: 4*time.Hour + 45*time.Minute, economyPrice: 550, businessPrice: 1400},
}

var searchEndpoint = endpoint{
	name:        "flight_availability_search",
	invalidMsg:  "Missing one or more required parameters: Origin, Destination, DepartureDate.",
	internalMsg: "An internal error occurred while searching for flights.",
}

// SearchAvailability lists the flights departing on the requested day.
func (h *Handler) SearchAvailability(w http.ResponseWriter, r *http.Request) {
	serve(h, searchEndpoint, h.searchAvailability)(w, r)
}

func (h *Handler) searchAvailability(_ context.Context, logger *zap.Logger, req *AvailabilityRequest) (any, error) {
	day, err := time.Parse(dateLayout, req.DepartureDate)
	if err != nil {
		return nil, &statusError{
			status: http.StatusBadRequest,
			msg:    "Invalid DepartureDate. Expected format YYYY-MM-DD.",
		}
	}

	flights := make([]FlightOption, 0, len(schedule))
	for i, s := range schedule {
		dep := time.Date(day.Year(), day.Month(), day.Day(), s.hour, s.minute, 0, 0, time.UTC)
		flights = append(flights, FlightOption{
			FlightOptionID:    "OPT-" + h.newID(),
			FlightNumber:      fmt.Sprintf("FZ%d", 1700+i),
			DepartureDateTime: isoTime(dep),
			ArrivalDateTime:   isoTime(dep.Add(s.duration)),
			EconomyPrice:      s.economyPrice,
			BusinessPrice:     s.businessPrice,
			Currency:          currency,
		})
	}

	logger.Debug("Generated flight options",
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.Int("count", len(flights)),
	)
	return AvailabilityResponse{AvailableFlights: flights}, nil
}
