package core

import (
	"strings"

	"golang.org/x/text/currency"
)

// FallbackCurrency is used when neither a stored preference nor the locale
// table yields a currency.
const FallbackCurrency = "USD"

// Currencies lists the codes a transaction may be recorded in.
var Currencies = []string{
	"USD", "EUR", "GBP", "INR", "JPY", "CNY", "AUD", "CAD", "NZD", "CHF", "SEK",
	"NOK", "DKK", "ZAR", "SGD", "HKD", "KRW", "BRL", "MXN", "AED", "SAR", "NGN",
}

var supported = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Currencies))
	for _, c := range Currencies {
		m[c] = struct{}{}
	}
	return m
}()

// localeCurrencies is checked in order; the first matching prefix wins.
var localeCurrencies = []struct {
	prefix string
	code   string
}{
	{"en-GB", "GBP"},
	{"en-AU", "AUD"},
	{"en-CA", "CAD"},
	{"en-IN", "INR"},
	{"de", "EUR"},
	{"fr", "EUR"},
	{"es", "EUR"},
	{"it", "EUR"},
	{"pt", "EUR"},
	{"ja", "JPY"},
	{"zh", "CNY"},
}

// IsSupportedCurrency reports whether code is one of Currencies.
func IsSupportedCurrency(code string) bool {
	_, ok := supported[code]
	return ok
}

// NormalizeCurrency upper-cases and trims code and checks that it is a
// well-formed ISO 4217 code. It does not restrict to Currencies.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	if _, err := currency.ParseISO(code); err != nil {
		return "", ErrInvalidCurrency
	}
	return code, nil
}

// GuessCurrency maps a locale such as "en-GB" or "fr_FR" to a currency code.
func GuessCurrency(locale string) string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return FallbackCurrency
	}
	for _, lc := range localeCurrencies {
		if strings.HasPrefix(locale, lc.prefix) {
			return lc.code
		}
	}
	return FallbackCurrency
}
