// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package locale_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/lms/internal/platform/locale"
)

/*
TestNegotiate maps Accept-Language headers onto fr, ar, or en.
*/
func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   locale.Locale
	}{
		{"", locale.FR},
		{"ar-MA,ar;q=0.9", locale.AR},
		{"en-GB,en;q=0.8", locale.EN},
		{"fr-CA", locale.FR},
		{"de-DE", locale.FR},
		{"de;q=0.9,en;q=0.5", locale.EN},
		{";;;garbage", locale.FR},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, locale.Negotiate(tt.header))
		})
	}
}

/*
TestParse accepts only the supported codes.
*/
func TestParse(t *testing.T) {
	loc, ok := locale.Parse("ar")
	assert.True(t, ok)
	assert.Equal(t, locale.AR, loc)
	assert.True(t, loc.IsRTL())

	_, ok = locale.Parse("es")
	assert.False(t, ok)

	assert.Equal(t, []string{"fr", "ar", "en"}, locale.Strings())
}
