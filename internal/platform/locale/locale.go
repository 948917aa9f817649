// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package locale models the interface languages offered by the LMS.

French is the default. Arabic is rendered right-to-left by clients, which
is why [Locale.IsRTL] exists. Negotiation from an Accept-Language header is
delegated to golang.org/x/text/language so quality values and regional
variants ("ar-MA", "en-GB;q=0.8") are handled correctly.
*/
package locale

import (
	"golang.org/x/text/language"
)

// Locale is a supported interface language, stored as its ISO 639-1 code.
type Locale string

const (
	FR Locale = "fr"
	AR Locale = "ar"
	EN Locale = "en"

	// Default is used when nothing better can be negotiated.
	Default = FR
)

// Supported lists every locale in preference order. The first entry is the default.
var Supported = []Locale{FR, AR, EN}

var matcher = language.NewMatcher([]language.Tag{
	language.French,
	language.Arabic,
	language.English,
})

// Parse returns the locale for code, or false when it is not supported.
func Parse(code string) (Locale, bool) {
	switch loc := Locale(code); loc {
	case FR, AR, EN:
		return loc, true
	default:
		return "", false
	}
}

// Negotiate picks the best supported locale for an Accept-Language header.
func Negotiate(acceptLanguage string) Locale {
	if acceptLanguage == "" {
		return Default
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}

	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Default
	}
	return Supported[index]
}

// IsRTL reports whether the locale is written right-to-left.
func (l Locale) IsRTL() bool {
	return l == AR
}

// Strings returns the codes of every supported locale.
func Strings() []string {
	out := make([]string, len(Supported))
	for i, loc := range Supported {
		out[i] = string(loc)
	}
	return out
}
