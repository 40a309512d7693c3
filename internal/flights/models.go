package flights

const currency = "AED"

type AvailabilityRequest struct {
	Origin        string `json:"Origin" validate:"required"`
	Destination   string `json:"Destination" validate:"required"`
	DepartureDate string `json:"DepartureDate" validate:"required"`
}

type FlightOption struct {
	FlightOptionID    string  `json:"FlightOptionID"`
	FlightNumber      string  `json:"FlightNumber"`
	DepartureDateTime string  `json:"DepartureDateTime"`
	ArrivalDateTime   string  `json:"ArrivalDateTime"`
	EconomyPrice      float64 `json:"EconomyPrice"`
	BusinessPrice     float64 `json:"BusinessPrice"`
	Currency          string  `json:"Currency"`
}

type AvailabilityResponse struct {
	AvailableFlights []FlightOption `json:"AvailableFlights"`
}

type QuoteRequest struct {
	BookingReference string `json:"BookingReference" validate:"required"`
	// FlightOptionIDs is a comma separated list.
	FlightOptionIDs string `json:"FlightOptionIDs" validate:"required"`
}

type FeeWaiver struct {
	IsWaived bool    `json:"IsWaived"`
	Reason   *string `json:"Reason"`
}

type QuoteResponse struct {
	QuoteID            string    `json:"QuoteID"`
	FareDifference     float64   `json:"FareDifference"`
	ChangeFee          float64   `json:"ChangeFee"`
	TaxesAndSurcharges float64   `json:"TaxesAndSurcharges"`
	TotalDue           float64   `json:"TotalDue"`
	Currency           string    `json:"Currency"`
	FeeWaiver          FeeWaiver `json:"FeeWaiver"`
}

type AncillaryOffer struct {
	AncillaryCode string  `json:"AncillaryCode"`
	AncillaryType string  `json:"AncillaryType"`
	Description   string  `json:"Description"`
	Price         float64 `json:"Price"`
	Currency      string  `json:"Currency"`
}

type AncillaryOffersResponse struct {
	AncillaryOffers []AncillaryOffer `json:"AncillaryOffers"`
}

// QuoteRefRequest is the body of the loyalty and confirmation endpoints.
type QuoteRefRequest struct {
	BookingReference string `json:"BookingReference" validate:"required"`
	QuoteID          string `json:"QuoteID" validate:"required"`
}

type MilesEarned struct {
	Economy  int `json:"Economy"`
	Business int `json:"Business"`
}

type RedemptionOption struct {
	RedemptionCode string `json:"RedemptionCode"`
	OptionType     string `json:"OptionType"`
	Description    string `json:"Description"`
	MilesRequired  int    `json:"MilesRequired"`
}

type LoyaltyResponse struct {
	MilesEarned       MilesEarned        `json:"MilesEarned"`
	RedemptionOptions []RedemptionOption `json:"RedemptionOptions"`
}

type ConfirmResponse struct {
	Status                string  `json:"Status"`
	NewConfirmationNumber *string `json:"NewConfirmationNumber"`
	Message               string  `json:"Message"`
	FinalAmountCharged    float64 `json:"FinalAmountCharged"`
	Currency              string  `json:"Currency"`
}

type DetailsRequest struct {
	BookingReference string `json:"BookingReference" validate:"required"`
}

type LogicalFlight struct {
	Key                 string `json:"Key"`
	Origin              string `json:"Origin"`
	Destination         string `json:"Destination"`
	FlightNumber        string `json:"FlightNumber"`
	DepartureTime       string `json:"DepartureTime"`
	ArrivalTime         string `json:"Arrivaltime"`
	PhysicalFlightsJSON string `json:"physicalFlightsJson"`
	CustomersJSON       string `json:"customersJson"`
}

type PhysicalFlight struct {
	Origin        string `json:"Origin"`
	Destination   string `json:"Destination"`
	DepartureTime string `json:"DepartureTime"`
	ArrivalTime   string `json:"Arrivaltime"`
	AircraftType  string `json:"AirCraftType"`
}

type Charge struct {
	CodeType    string  `json:"CodeType"`
	TaxCode     string  `json:"TaxCode,omitempty"`
	Amount      float64 `json:"Amount"`
	Description string  `json:"Description"`
}

type AirlinePerson struct {
	PersonOrgID   int      `json:"PersonOrgID"`
	FirstName     string   `json:"FirstName"`
	LastName      string   `json:"LastName"`
	PTCID         int      `json:"PTCID"`
	FareClassCode string   `json:"FareClassCode"`
	WebFareType   string   `json:"WebFareType"`
	FareBasisCode string   `json:"FareBasisCode"`
	Cabin         string   `json:"Cabin"`
	Charges       []Charge `json:"Charges"`
}

type Customer struct {
	AirlinePersons []AirlinePerson `json:"AirlinePersons"`
}

type Payment struct {
	ReservationPaymentID int     `json:"ReservationPaymentID"`
	PaymentAmount        float64 `json:"PaymentAmount"`
	CurrencyPaid         string  `json:"CurrencyPaid"`
	PaymentMethod        string  `json:"PaymentMethod"`
	DatePaid             string  `json:"DatePaid"`
	PersonOrgID          int     `json:"PersonOrgID"`
	FirstName            string  `json:"FirstName"`
	LastName             string  `json:"LastName"`
}

type ReservationContact struct {
	PersonOrgID int    `json:"PersonOrgID"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	PTCID       int    `json:"PTCID"`
}

type ContactInfo struct {
	ContactID              int    `json:"ContactID"`
	ContactType            int    `json:"ContactType"`
	ContactField           string `json:"ContactField"`
	PreferredContactMethod bool   `json:"PreferredContactMethod"`
}

type ReservationException struct {
	ExceptionCode        int    `json:"ExceptionCode"`
	ExceptionDescription string `json:"ExceptionDescription"`
}

type DetailsResponse struct {
	BookingReference     string                 `json:"BookingReference"`
	ConfirmationNumber   string                 `json:"ConfirmationNumber"`
	BookingAgent         string                 `json:"BookingAgent"`
	BookDate             string                 `json:"BookDate"`
	ReservationType      string                 `json:"ReservationType"`
	Cabin                string                 `json:"Cabin"`
	ReservationBalance   float64                `json:"ReservationBalance"`
	LogicalFlightCount   int                    `json:"LogicalFlightCount"`
	ActivePassengerCount int                    `json:"ActivePassengerCount"`
	BalancedReservation  bool                   `json:"BalancedReservation"`
	ReservationCurrency  string                 `json:"ReservationCurrency"`
	LogicalFlights       []LogicalFlight        `json:"logicalFlights"`
	Payments             []Payment              `json:"Payments"`
	ReservationContacts  []ReservationContact   `json:"ReservationContacts"`
	ContactInfos         []ContactInfo          `json:"ContactInfos"`
	Exceptions           []ReservationException `json:"Exceptions"`
}

// ErrorBody is the JSON body of every non-2xx response of this package.
type ErrorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}
