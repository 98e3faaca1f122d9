package rates

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/currency"
)

// Offline tables used when the upstream API cannot be reached.
var fallbackTables = map[string]map[string]string{
	"USD": {
		"EUR": "0.85", "GBP": "0.73", "INR": "83.12", "JPY": "110.0", "CNY": "7.23",
		"AUD": "1.52", "CAD": "1.36", "CHF": "0.92", "SEK": "10.87", "NOK": "10.72",
		"DKK": "6.34", "ZAR": "18.85", "SGD": "1.35", "HKD": "7.85", "KRW": "1342.0",
		"BRL": "5.17", "MXN": "17.12", "AED": "3.67", "SAR": "3.75", "NGN": "775.0",
		"NZD": "1.67",
	},
	"EUR": {
		"USD": "1.18", "GBP": "0.86", "INR": "97.84", "JPY": "129.53", "CNY": "8.52",
		"AUD": "1.79", "CAD": "1.60", "CHF": "1.08", "SEK": "12.80", "NOK": "12.63",
		"DKK": "7.46", "ZAR": "22.22", "SGD": "1.59", "HKD": "9.25", "KRW": "1580.36",
		"BRL": "6.09", "MXN": "20.18", "AED": "4.33", "SAR": "4.42", "NGN": "913.0",
		"NZD": "1.97",
	},
	"GBP": {
		"USD": "1.37", "EUR": "1.16", "INR": "113.80", "JPY": "150.70", "CNY": "9.91",
		"AUD": "2.08", "CAD": "1.86", "CHF": "1.26", "SEK": "14.89", "NOK": "14.69",
		"DKK": "8.68", "ZAR": "25.84", "SGD": "1.85", "HKD": "10.76", "KRW": "1838.94",
		"BRL": "7.08", "MXN": "23.46", "AED": "5.03", "SAR": "5.14", "NGN": "1062.5",
		"NZD": "2.29",
	},
}

// FallbackRates returns the built-in table for base. Bases without a table get
// a minimal USD/EUR/GBP table. The base itself is always 1.
func FallbackRates(base string) currency.Rates {
	one := decimal.NewFromInt(1)
	out := make(currency.Rates)

	if table, ok := fallbackTables[base]; ok {
		for code, v := range table {
			out[code] = decimal.RequireFromString(v)
		}
		out[base] = one
		return out
	}

	out["USD"] = one
	out["EUR"] = one
	out["GBP"] = one
	out[base] = one
	return out
}
