package flights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	bookingAgent = "claudius.lewis"
	personOrgID  = 246255753
)

var detailsEndpoint = endpoint{
	name:        "get_flight_details",
	invalidMsg:  "Missing required parameter. 'BookingReference' is required.",
	internalMsg: "An internal error occurred.",
}

// FlightDetails looks up the reservation behind a booking reference. A
// reference of the form PNR:CONF resolves to confirmation number CONF.
func (h *Handler) FlightDetails(w http.ResponseWriter, r *http.Request) {
	serve(h, detailsEndpoint, h.flightDetails)(w, r)
}

func (h *Handler) flightDetails(ctx context.Context, logger *zap.Logger, req *DetailsRequest) (any, error) {
	confirmation, ok := confirmationNumber(req.BookingReference)
	if !ok {
		return nil, &statusError{status: http.StatusNotFound, msg: "Booking not found."}
	}

	logger.Info("Starting reservation details lookup", zap.String("booking_reference", req.BookingReference))

	resp, err := h.reservation(req.BookingReference, confirmation)
	if err != nil {
		return nil, err
	}

	if err := h.simulateLookup(ctx); err != nil {
		return nil, fmt.Errorf("reservation lookup interrupted: %w", err)
	}

	logger.Info("Successfully fetched mock reservation details", zap.String("booking_reference", req.BookingReference))
	return resp, nil
}

// confirmationNumber returns the second colon separated field of ref, or ref
// itself when it has no colon. An empty field cannot be resolved.
func confirmationNumber(ref string) (string, bool) {
	parts := strings.Split(ref, ":")
	if len(parts) == 1 {
		return ref, true
	}
	return parts[1], strings.TrimSpace(parts[1]) != ""
}

func (h *Handler) simulateLookup(ctx context.Context) error {
	if h.lookupDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(h.lookupDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *Handler) reservation(bookingReference, confirmation string) (*DetailsResponse, error) {
	now := h.now().UTC()
	bookDate := at(now, 7, 6, 48, 58)

	outDep := at(bookDate, 1, 10, 0, 0)
	outArr := at(outDep, 0, 16, 10, 0)
	outStopArr := at(outDep, 0, 14, 30, 0)
	outStopDep := at(outDep, 0, 15, 30, 0)

	retDep := at(outDep, 3, 19, 50, 0)
	retArr := at(retDep, 1, 4, 15, 0)
	retStopArr := at(retDep, 0, 20, 30, 0)
	retStopDep := at(retDep, 0, 21, 30, 0)

	outbound, err := logicalFlight(legPlan{
		key:          "16087794:16087794:" + outDep.Format(keyDateLayout),
		flightNumber: "1687",
		route:        [3]string{"DXB", "ZNZ", "DAR"},
		aircraft:     [2]string{"73X", "TMPX"},
		times:        [4]time.Time{outDep, outStopArr, outStopDep, outArr},
		fare:         575,
		taxes: []Charge{
			tax("AE", 75, "AE: Passenger Service Charge (Intl)"),
			tax("F6", 45, "F6: Passenger Facilities Charge."),
			tax("YQ", 280, "YQ: YQ - DUMMY"),
			tax("ZR", 5, "ZR: Advanced passenger information fee"),
			tax("TP", 5, "TP: Passengers Security & Safety Service Fees"),
		},
	})
	if err != nil {
		return nil, err
	}

	inbound, err := logicalFlight(legPlan{
		key:          "16087788:16087788:" + retDep.Format(keyDateLayout),
		flightNumber: "1688",
		route:        [3]string{"DAR", "ZNZ", "DXB"},
		aircraft:     [2]string{"TMPX", "73X"},
		times:        [4]time.Time{retDep, retStopArr, retStopDep, retArr},
		fare:         580,
		taxes: []Charge{
			tax("YQ", 280, "YQ: YQ - DUMMY"),
			tax("ZR", 5, "ZR: Advanced passenger information fee"),
			tax("HY", 40, "HY: Aviation Safety Fee"),
			tax("TZ", 150, "TZ: Airport Tax"),
			tax("M4", 20, "M4: Security Fee"),
		},
	})
	if err != nil {
		return nil, err
	}

	return &DetailsResponse{
		BookingReference:     bookingReference,
		ConfirmationNumber:   confirmation,
		BookingAgent:         bookingAgent,
		BookDate:             isoTime(bookDate),
		ReservationType:      "STANDARD",
		Cabin:                "ECONOMY",
		ReservationBalance:   0,
		LogicalFlightCount:   2,
		ActivePassengerCount: 1,
		BalancedReservation:  true,
		ReservationCurrency:  currency,
		LogicalFlights:       []LogicalFlight{outbound, inbound},
		Payments: []Payment{{
			ReservationPaymentID: 185800246,
			PaymentAmount:        2060,
			CurrencyPaid:         currency,
			PaymentMethod:        "TCSH",
			DatePaid:             isoTime(bookDate),
			PersonOrgID:          personOrgID,
			FirstName:            "JOHN",
			LastName:             "DOE",
		}},
		ReservationContacts: []ReservationContact{{
			PersonOrgID: personOrgID,
			FirstName:   "JOHN",
			LastName:    "DOE",
			PTCID:       1,
		}},
		ContactInfos: []ContactInfo{{
			ContactID:              304356199,
			ContactType:            4,
			ContactField:           bookingAgent + "@gairlines.com",
			PreferredContactMethod: true,
		}},
		Exceptions: []ReservationException{{
			ExceptionCode:        0,
			ExceptionDescription: "Successful Transaction",
		}},
	}, nil
}

// legPlan describes a logical flight with one technical stop.
type legPlan struct {
	key          string
	flightNumber string
	// origin, stop, destination
	route [3]string
	// aircraft of the two physical segments
	aircraft [2]string
	// departure, stop arrival, stop departure, arrival
	times [4]time.Time
	fare  float64
	taxes []Charge
}

func tax(code string, amount float64, description string) Charge {
	return Charge{CodeType: "TAX", TaxCode: code, Amount: amount, Description: description}
}

func logicalFlight(p legPlan) (LogicalFlight, error) {
	physical, err := compactJSON([]PhysicalFlight{
		{
			Origin:        p.route[0],
			Destination:   p.route[1],
			DepartureTime: isoTime(p.times[0]),
			ArrivalTime:   isoTime(p.times[1]),
			AircraftType:  p.aircraft[0],
		},
		{
			Origin:        p.route[1],
			Destination:   p.route[2],
			DepartureTime: isoTime(p.times[2]),
			ArrivalTime:   isoTime(p.times[3]),
			AircraftType:  p.aircraft[1],
		},
	})
	if err != nil {
		return LogicalFlight{}, fmt.Errorf("failed to encode physical flights: %w", err)
	}

	day := p.times[0].Format(chargeDateLayout)
	fareDescription := fmt.Sprintf("FZ %s %s-%s %s %s %s\nFZ %s %s-%s %s %s %s",
		p.flightNumber, p.route[0], p.route[1], day, p.times[0].Format(clockLayout), p.times[1].Format(clockLayout),
		p.flightNumber, p.route[1], p.route[2], day, p.times[2].Format(clockLayout), p.times[3].Format(clockLayout),
	)

	charges := append([]Charge{{CodeType: "AIR", Amount: p.fare, Description: fareDescription}}, p.taxes...)
	customers, err := compactJSON([]Customer{{
		AirlinePersons: []AirlinePerson{{
			PersonOrgID:   personOrgID,
			FirstName:     "JOHN",
			LastName:      "DOE",
			PTCID:         1,
			FareClassCode: "R",
			WebFareType:   "Lite",
			FareBasisCode: "RR6AE2",
			Cabin:         "ECONOMY",
			Charges:       charges,
		}},
	}})
	if err != nil {
		return LogicalFlight{}, fmt.Errorf("failed to encode customers: %w", err)
	}

	return LogicalFlight{
		Key:                 p.key,
		Origin:              p.route[0],
		Destination:         p.route[2],
		FlightNumber:        p.flightNumber,
		DepartureTime:       isoTime(p.times[0]),
		ArrivalTime:         isoTime(p.times[3]),
		PhysicalFlightsJSON: physical,
		CustomersJSON:       customers,
	}, nil
}

// compactJSON encodes v without escaping HTML characters.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
