// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/taibuivan/lms/internal/platform/locale"
	"github.com/taibuivan/lms/internal/platform/mailer"
)

// # Localized Email Copy

type mailCopy struct {
	Subject  string
	Greeting string
	Body     string
	Action   string
	Footer   string
}

var verificationCopy = map[locale.Locale]mailCopy{
	locale.FR: {
		Subject:  "Confirmez votre adresse e-mail",
		Greeting: "Bonjour %s,",
		Body:     "Merci pour votre inscription. Confirmez votre adresse e-mail en ouvrant le lien ci-dessous.",
		Action:   "Confirmer mon adresse",
		Footer:   "Ce lien expire dans 24 heures.",
	},
	locale.AR: {
		Subject:  "تأكيد بريدك الإلكتروني",
		Greeting: "مرحبا %s،",
		Body:     "شكرا لتسجيلك. يرجى تأكيد بريدك الإلكتروني عبر الرابط أدناه.",
		Action:   "تأكيد البريد الإلكتروني",
		Footer:   "تنتهي صلاحية هذا الرابط خلال 24 ساعة.",
	},
	locale.EN: {
		Subject:  "Confirm your email address",
		Greeting: "Hello %s,",
		Body:     "Thanks for signing up. Confirm your email address by opening the link below.",
		Action:   "Confirm my address",
		Footer:   "This link expires in 24 hours.",
	},
}

var resetCopy = map[locale.Locale]mailCopy{
	locale.FR: {
		Subject:  "Réinitialisation de votre mot de passe",
		Greeting: "Bonjour %s,",
		Body:     "Une réinitialisation du mot de passe a été demandée pour votre compte. Si vous n'en êtes pas l'auteur, ignorez cet e-mail.",
		Action:   "Choisir un nouveau mot de passe",
		Footer:   "Ce lien expire dans 1 heure.",
	},
	locale.AR: {
		Subject:  "إعادة تعيين كلمة المرور",
		Greeting: "مرحبا %s،",
		Body:     "تم طلب إعادة تعيين كلمة المرور لحسابك. إذا لم تطلب ذلك، تجاهل هذه الرسالة.",
		Action:   "اختيار كلمة مرور جديدة",
		Footer:   "تنتهي صلاحية هذا الرابط خلال ساعة واحدة.",
	},
	locale.EN: {
		Subject:  "Reset your password",
		Greeting: "Hello %s,",
		Body:     "A password reset was requested for your account. If this was not you, ignore this email.",
		Action:   "Choose a new password",
		Footer:   "This link expires in 1 hour.",
	},
}

var htmlLayout = template.Must(template.New("mail").Parse(`<!doctype html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<body style="font-family:sans-serif">
<p>{{.Greeting}}</p>
<p>{{.Body}}</p>
<p><a href="{{.Link}}">{{.Action}}</a></p>
<p style="color:#666">{{.Footer}}</p>
</body>
</html>`))

type mailView struct {
	Lang     string
	Dir      string
	Greeting string
	Body     string
	Action   string
	Footer   string
	Link     string
}

// # Message Composition

// mailComposer renders token emails that link to the web front-end.
type mailComposer struct {
	baseURL string
}

func newMailComposer(publicBaseURL string) mailComposer {
	return mailComposer{baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// link builds {base}/{locale}/{page}?token=..., the front-end route for the token.
func (composer mailComposer) link(loc locale.Locale, page, token string) string {
	return fmt.Sprintf("%s/%s/%s?token=%s", composer.baseURL, loc, page, url.QueryEscape(token))
}

func (composer mailComposer) verification(account *Account, token IssuedToken) (mailer.Message, error) {
	link := composer.link(account.Locale, "verify-email", token.Value)
	return compose(account, verificationCopy, link, mailer.KindVerification)
}

func (composer mailComposer) passwordReset(account *Account, token IssuedToken) (mailer.Message, error) {
	link := composer.link(account.Locale, "reset-password", token.Value)
	return compose(account, resetCopy, link, mailer.KindPasswordReset)
}

func compose(account *Account, catalogue map[locale.Locale]mailCopy, link, kind string) (mailer.Message, error) {
	text, ok := catalogue[account.Locale]
	if !ok {
		text = catalogue[locale.Default]
	}

	view := mailView{
		Lang:     string(account.Locale),
		Dir:      "ltr",
		Greeting: fmt.Sprintf(text.Greeting, account.Name),
		Body:     text.Body,
		Action:   text.Action,
		Footer:   text.Footer,
		Link:     link,
	}
	if account.Locale.IsRTL() {
		view.Dir = "rtl"
	}

	var html bytes.Buffer
	if err := htmlLayout.Execute(&html, view); err != nil {
		return mailer.Message{}, fmt.Errorf("render_%s_mail: %w", kind, err)
	}

	plain := strings.Join([]string{view.Greeting, view.Body, view.Link, view.Footer}, "\n\n")

	return mailer.Message{
		To:      account.Email,
		Subject: text.Subject,
		Text:    plain,
		HTML:    html.String(),
		Kind:    kind,
	}, nil
}
