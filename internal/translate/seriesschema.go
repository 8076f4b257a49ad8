package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

// weekdayOrder lists RRULE BYDAY tokens in MO..SU order, the order the
// translator must emit them in.
var weekdayOrder = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var dayNameToToken = map[string]string{
	"monday":    "MO",
	"tuesday":   "TU",
	"wednesday": "WE",
	"thursday":  "TH",
	"friday":    "FR",
	"saturday":  "SA",
	"sunday":    "SU",
}

var tokenToDayName = map[string]string{
	"MO": "monday",
	"TU": "tuesday",
	"WE": "wednesday",
	"TH": "thursday",
	"FR": "friday",
	"SA": "saturday",
	"SU": "sunday",
}

var allBusinessDays = map[string]bool{"MO": true, "TU": true, "WE": true, "TH": true, "FR": true}

// SeriesSchemaToRRule synthesizes an RRULE value (without the "RRULE:"
// prefix) from an upstream seriesSchema. Returns ("", false, nil) for the
// arrhythmic variant, which has no RRULE representation.
func SeriesSchemaToRRule(s *upstream.SeriesSchema) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("translate: nil seriesSchema")
	}

	switch s.SchemaType {
	case "daily":
		d := s.DailySchemaData
		if d == nil {
			return "", false, fmt.Errorf("translate: daily schema missing dailySchemaData")
		}
		if d.Regularity == "allBusinessDays" {
			return "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", true, nil
		}
		if d.DaysInterval > 1 {
			return fmt.Sprintf("FREQ=DAILY;INTERVAL=%d", d.DaysInterval), true, nil
		}
		return "FREQ=DAILY", true, nil

	case "weekly":
		w := s.WeeklySchemaData
		if w == nil {
			return "", false, fmt.Errorf("translate: weekly schema missing weeklySchemaData")
		}
		days := orderWeekdayTokens(w.Weekdays)
		rule := "FREQ=WEEKLY"
		if w.WeeksInterval > 1 {
			rule += fmt.Sprintf(";INTERVAL=%d", w.WeeksInterval)
		}
		rule += ";BYDAY=" + strings.Join(days, ",")
		return rule, true, nil

	case "monthly":
		m := s.MonthlySchemaData
		if m == nil {
			return "", false, fmt.Errorf("translate: monthly schema missing monthlySchemaData")
		}
		rule := "FREQ=MONTHLY"
		if m.MonthsInterval > 1 {
			rule += fmt.Sprintf(";INTERVAL=%d", m.MonthsInterval)
		}
		switch m.Regularity {
		case "specificDate":
			rule += fmt.Sprintf(";BYMONTHDAY=%d", m.DayOfMonth)
		case "specificDay":
			token, ok := dayNameToToken[strings.ToLower(m.Weekday)]
			if !ok {
				return "", false, fmt.Errorf("translate: unknown weekday %q", m.Weekday)
			}
			rule += fmt.Sprintf(";BYDAY=%d%s", m.WeekNumber, token)
		default:
			return "", false, fmt.Errorf("translate: unknown monthly regularity %q", m.Regularity)
		}
		return rule, true, nil

	case "yearly":
		y := s.YearlySchemaData
		if y == nil {
			return "", false, fmt.Errorf("translate: yearly schema missing yearlySchemaData")
		}
		rule := fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d", y.MonthOfYear)
		switch y.Regularity {
		case "specificDate":
			rule += fmt.Sprintf(";BYMONTHDAY=%d", y.DayOfMonth)
		case "specificDay":
			token, ok := dayNameToToken[strings.ToLower(y.Weekday)]
			if !ok {
				return "", false, fmt.Errorf("translate: unknown weekday %q", y.Weekday)
			}
			rule += fmt.Sprintf(";BYDAY=%d%s", y.WeekNumber, token)
		default:
			return "", false, fmt.Errorf("translate: unknown yearly regularity %q", y.Regularity)
		}
		return rule, true, nil

	case "arrhythmic":
		return "", false, nil

	default:
		return "", false, fmt.Errorf("translate: unknown schemaType %q", s.SchemaType)
	}
}

func orderWeekdayTokens(names []string) []string {
	present := map[string]bool{}
	for _, n := range names {
		if token, ok := dayNameToToken[strings.ToLower(n)]; ok {
			present[token] = true
		}
	}
	var out []string
	for _, tok := range weekdayOrder {
		if present[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// rruleParts parses an RRULE value's ";"-delimited NAME=VALUE pairs into a
// map. Values are kept as written; multi-valued fields (BYDAY) are split
// on "," by the caller (splitByday).
func rruleParts(rrule string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(rrule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.ToUpper(kv[0])] = kv[1]
	}
	return out
}

// RRuleToSeriesSchema maps an RRULE value back to an upstream seriesSchema,
// the inverse of SeriesSchemaToRRule, including the allBusinessDays
// round-trip detection (BYDAY=MO..FR is a daily schema, not a weekly one).
func RRuleToSeriesSchema(rrule string) (*upstream.SeriesSchema, error) {
	parts := rruleParts(rrule)
	freq := parts["FREQ"]
	interval := 1
	if v, ok := parts["INTERVAL"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			interval = n
		}
	}

	switch freq {
	case "DAILY":
		return &upstream.SeriesSchema{
			SchemaType: "daily",
			DailySchemaData: &upstream.DailySchemaData{
				Regularity:   "interval",
				DaysInterval: interval,
			},
		}, nil

	case "WEEKLY":
		byday := splitByday(parts["BYDAY"])
		if isAllBusinessDays(byday) {
			return &upstream.SeriesSchema{
				SchemaType:      "daily",
				DailySchemaData: &upstream.DailySchemaData{Regularity: "allBusinessDays"},
			}, nil
		}
		var weekdays []string
		for _, tok := range byday {
			if name, ok := tokenToDayName[tok]; ok {
				weekdays = append(weekdays, name)
			}
		}
		return &upstream.SeriesSchema{
			SchemaType: "weekly",
			WeeklySchemaData: &upstream.WeeklySchemaData{
				Weekdays:      weekdays,
				WeeksInterval: interval,
			},
		}, nil

	case "MONTHLY":
		if v, ok := parts["BYMONTHDAY"]; ok {
			day, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("translate: invalid BYMONTHDAY %q: %w", v, err)
			}
			return &upstream.SeriesSchema{
				SchemaType: "monthly",
				MonthlySchemaData: &upstream.MonthlySchemaData{
					Regularity:     "specificDate",
					DayOfMonth:     day,
					MonthsInterval: interval,
				},
			}, nil
		}
		if v, ok := parts["BYDAY"]; ok {
			weekNum, token, err := splitOrdinalWeekday(v)
			if err != nil {
				return nil, err
			}
			name, ok := tokenToDayName[token]
			if !ok {
				return nil, fmt.Errorf("translate: unknown weekday token %q", token)
			}
			return &upstream.SeriesSchema{
				SchemaType: "monthly",
				MonthlySchemaData: &upstream.MonthlySchemaData{
					Regularity:     "specificDay",
					Weekday:        name,
					WeekNumber:     weekNum,
					MonthsInterval: interval,
				},
			}, nil
		}
		return nil, fmt.Errorf("translate: MONTHLY rrule missing BYMONTHDAY/BYDAY")

	case "YEARLY":
		month := 1
		if v, ok := parts["BYMONTH"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				month = n
			}
		}
		if v, ok := parts["BYMONTHDAY"]; ok {
			day, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("translate: invalid BYMONTHDAY %q: %w", v, err)
			}
			return &upstream.SeriesSchema{
				SchemaType: "yearly",
				YearlySchemaData: &upstream.YearlySchemaData{
					Regularity:  "specificDate",
					MonthOfYear: month,
					DayOfMonth:  day,
				},
			}, nil
		}
		if v, ok := parts["BYDAY"]; ok {
			weekNum, token, err := splitOrdinalWeekday(v)
			if err != nil {
				return nil, err
			}
			name, ok := tokenToDayName[token]
			if !ok {
				return nil, fmt.Errorf("translate: unknown weekday token %q", token)
			}
			return &upstream.SeriesSchema{
				SchemaType: "yearly",
				YearlySchemaData: &upstream.YearlySchemaData{
					Regularity:  "specificDay",
					MonthOfYear: month,
					Weekday:     name,
					WeekNumber:  weekNum,
				},
			}, nil
		}
		return nil, fmt.Errorf("translate: YEARLY rrule missing BYMONTHDAY/BYDAY")

	default:
		return nil, fmt.Errorf("translate: unsupported FREQ %q", freq)
	}
}

func splitByday(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func isAllBusinessDays(tokens []string) bool {
	if len(tokens) != 5 {
		return false
	}
	seen := map[string]bool{}
	for _, t := range tokens {
		seen[t] = true
	}
	for day := range allBusinessDays {
		if !seen[day] {
			return false
		}
	}
	return true
}

// splitOrdinalWeekday parses a single BYDAY token like "1MO" or "-1FR" into
// its week-number and weekday-token parts.
func splitOrdinalWeekday(token string) (int, string, error) {
	token = strings.TrimSpace(token)
	if len(token) < 3 {
		return 0, "", fmt.Errorf("translate: malformed BYDAY token %q", token)
	}
	dayToken := token[len(token)-2:]
	numPart := token[:len(token)-2]
	if numPart == "" {
		numPart = "1"
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, "", fmt.Errorf("translate: malformed BYDAY ordinal %q: %w", token, err)
	}
	return n, strings.ToUpper(dayToken), nil
}
