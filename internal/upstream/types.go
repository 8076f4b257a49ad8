// Package upstream is the typed client for the proprietary REST API this
// gateway fronts: OAuth2 password/refresh token lifecycle, and endpoints
// for calendar events, occurrences, and addresses.
package upstream

import "time"

// Event is the authoritative record held by the upstream for a calendar
// event.
type Event struct {
	Key      string `json:"key,omitempty"`
	OwnerKey string `json:"ownerKey,omitempty"`

	EventMode string `json:"eventMode,omitempty"` // "single" | "serial"

	Subject       string `json:"subject,omitempty"`
	Content       string `json:"content,omitempty"`
	Location      string `json:"location,omitempty"`
	EventCategory string `json:"eventCategory,omitempty"`
	Private       bool   `json:"private,omitempty"`

	// Single-event fields (RFC 3339 UTC, no fractional seconds, no offset).
	StartDateTime        string `json:"startDateTime,omitempty"`
	StartDateTimeEnabled bool   `json:"startDateTimeEnabled,omitempty"`
	EndDateTime          string `json:"endDateTime,omitempty"`
	EndDateTimeEnabled   bool   `json:"endDateTimeEnabled,omitempty"`

	// Serial-event fields.
	SeriesStartDate            string        `json:"seriesStartDate,omitempty"`
	SeriesEndDate              string        `json:"seriesEndDate,omitempty"`
	OccurrenceStartTime        int           `json:"occurrenceStartTime"`
	OccurrenceStartTimeEnabled bool          `json:"occurrenceStartTimeEnabled,omitempty"`
	OccurrenceEndTime          int           `json:"occurrenceEndTime"`
	OccurrenceEndTimeEnabled   bool          `json:"occurrenceEndTimeEnabled,omitempty"`
	SeriesSchema               *SeriesSchema `json:"seriesSchema,omitempty"`

	WholeDayEvent bool `json:"wholeDayEvent,omitempty"`

	ReminderEnabled   bool `json:"reminderEnabled,omitempty"`
	RemindBeforeStart int  `json:"remindBeforeStart,omitempty"`

	// OccurrenceID is only populated on records returned by the
	// occurrences-listing endpoint; it is absent from the full-event
	// endpoint's response.
	OccurrenceID string `json:"occurrenceId,omitempty"`
}

// SeriesSchema is the upstream's recurrence model, a tagged union. Exactly
// one of the *SchemaData fields is populated, selected by SchemaType.
type SeriesSchema struct {
	SchemaType string `json:"schemaType"` // daily | weekly | monthly | yearly | arrhythmic

	DailySchemaData   *DailySchemaData   `json:"dailySchemaData,omitempty"`
	WeeklySchemaData  *WeeklySchemaData  `json:"weeklySchemaData,omitempty"`
	MonthlySchemaData *MonthlySchemaData `json:"monthlySchemaData,omitempty"`
	YearlySchemaData  *YearlySchemaData  `json:"yearlySchemaData,omitempty"`
}

type DailySchemaData struct {
	Regularity   string `json:"regularity"` // allBusinessDays | interval
	DaysInterval int    `json:"daysInterval,omitempty"`
}

type WeeklySchemaData struct {
	Weekdays      []string `json:"weekdays"`
	WeeksInterval int      `json:"weeksInterval,omitempty"`
}

type MonthlySchemaData struct {
	Regularity     string `json:"regularity"` // specificDate | specificDay
	DayOfMonth     int    `json:"dayOfMonth,omitempty"`
	Weekday        string `json:"weekday,omitempty"`
	WeekNumber     int    `json:"weekNumber,omitempty"`
	MonthsInterval int    `json:"monthsInterval,omitempty"`
}

type YearlySchemaData struct {
	Regularity  string `json:"regularity"` // specificDate | specificDay
	MonthOfYear int    `json:"monthOfYear,omitempty"`
	DayOfMonth  int    `json:"dayOfMonth,omitempty"`
	Weekday     string `json:"weekday,omitempty"`
	WeekNumber  int    `json:"weekNumber,omitempty"`
}

// OccurrencesResponse is returned by GET /calendarEventsOccurrences.
type OccurrencesResponse struct {
	CalendarEvents []Event `json:"calendarEvents"`
	Count          int     `json:"count"`
	TotalCount     int     `json:"totalCount"`
}

// Address is a single upstream address-book record.
type Address struct {
	Key           string               `json:"key"`
	AddressType   string               `json:"addressType"`
	Note          string               `json:"note,omitempty"`
	TaxID         string               `json:"taxId,omitempty"`
	ClientNumber  string               `json:"clientNumber,omitempty"`
	PostAddresses []PostAddressWrapper `json:"postAddresses,omitempty"`
}

type PostAddressWrapper struct {
	PostAddress PostAddress `json:"postAddress"`
}

type PostAddress struct {
	Line1          string `json:"line1,omitempty"`
	Street         string `json:"street,omitempty"`
	ZipCodeAndCity string `json:"zipCodeAndCity,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Mobile         string `json:"mobile,omitempty"`
	Fax            string `json:"fax,omitempty"`
	Email          string `json:"email,omitempty"`
	Website        string `json:"website,omitempty"`
}

// AddressesResponse is returned by GET /companies/{c}/addresses.
type AddressesResponse struct {
	Addresses  []Address `json:"addresses"`
	Count      int       `json:"count"`
	TotalCount int       `json:"totalCount"`
}

// Company is one element of GET /companies's "companies" array.
type Company struct {
	CompanyName string `json:"companyName"`
}

// companiesResponse is the raw wire shape of GET /companies.
type companiesResponse struct {
	Companies []Company `json:"companies"`
}

// tokenSet is one acquired OAuth2 token pair and its expiry.
type tokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
}

func (t *tokenSet) expired() bool {
	return time.Now().UTC().After(t.ExpiresAt.Add(-60 * time.Second))
}

// tokenResponse is the raw wire shape of POST /token.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    *int   `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}
