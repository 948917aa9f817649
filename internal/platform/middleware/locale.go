// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"

	"github.com/taibuivan/lms/internal/platform/constants"
	"github.com/taibuivan/lms/internal/platform/ctxutil"
	"github.com/taibuivan/lms/internal/platform/locale"
)

// Locale resolves the response language and advertises it in Content-Language.
//
// An authenticated caller's stored preference wins over Accept-Language, so it
// must be mounted after [Authenticate].
func Locale() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			resolved := locale.Negotiate(request.Header.Get(constants.HeaderAcceptLanguage))

			if claims := ctxutil.GetAuthUser(request.Context()); claims != nil {
				if preferred, ok := locale.Parse(claims.Locale); ok {
					resolved = preferred
				}
			}

			writer.Header().Set(constants.HeaderContentLang, string(resolved))
			ctx := ctxutil.WithLocale(request.Context(), resolved)

			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}
