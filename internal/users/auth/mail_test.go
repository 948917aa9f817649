// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/mailer"
)

/*
TestMailComposer_Links points each email at the locale-prefixed front-end page.
*/
func TestMailComposer_Links(t *testing.T) {
	composer := newMailComposer("https://lms.app/")
	account := &Account{Email: "alice@x.com", Name: "Alice", Locale: locale.EN}
	token := IssuedToken{Value: "abc123"}

	verification, err := composer.verification(account, token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", verification.To)
	assert.Equal(t, mailer.KindVerification, verification.Kind)
	assert.Equal(t, "Confirm your email address", verification.Subject)
	assert.Contains(t, verification.Text, "https://lms.app/en/verify-email?token=abc123")
	assert.Contains(t, verification.HTML, `href="https://lms.app/en/verify-email?token=abc123"`)

	reset, err := composer.passwordReset(account, token)
	require.NoError(t, err)
	assert.Equal(t, mailer.KindPasswordReset, reset.Kind)
	assert.Contains(t, reset.Text, "https://lms.app/en/reset-password?token=abc123")
}

/*
TestMailComposer_Locales renders the account locale and sets the text direction.
*/
func TestMailComposer_Locales(t *testing.T) {
	composer := newMailComposer("https://lms.app")
	token := IssuedToken{Value: "t"}

	tests := []struct {
		locale  locale.Locale
		subject string
		dir     string
	}{
		{locale.FR, "Confirmez votre adresse e-mail", `dir="ltr"`},
		{locale.AR, "تأكيد بريدك الإلكتروني", `dir="rtl"`},
		{locale.EN, "Confirm your email address", `dir="ltr"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.locale), func(t *testing.T) {
			account := &Account{Email: "a@x.com", Name: "Ada", Locale: tt.locale}

			message, err := composer.verification(account, token)
			require.NoError(t, err)

			assert.Equal(t, tt.subject, message.Subject)
			assert.Contains(t, message.HTML, tt.dir)
			assert.Contains(t, message.HTML, `lang="`+string(tt.locale)+`"`)
			assert.Contains(t, message.Text, "/"+string(tt.locale)+"/verify-email")
		})
	}
}

/*
TestMailComposer_EscapesName keeps user-controlled names out of the markup.
*/
func TestMailComposer_EscapesName(t *testing.T) {
	account := &Account{Email: "a@x.com", Name: "<script>x</script>", Locale: locale.EN}

	message, err := newMailComposer("https://lms.app").verification(account, IssuedToken{Value: "t"})
	require.NoError(t, err)

	assert.NotContains(t, message.HTML, "<script>")
	assert.Contains(t, message.Text, "<script>x</script>")
}
