// Package language negotiates the display language from Accept-Language.
package language

import (
	"net/http"

	"regflow/pkg/requestcontext"

	"golang.org/x/text/language"
)

// Middleware matches Accept-Language against the supported tags and stores the
// result on the request context. The first supported tag is the fallback.
func Middleware(supported []language.Tag) func(http.Handler) http.Handler {
	matcher := language.NewMatcher(supported)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
			_, idx, _ := matcher.Match(tags...)
			ctx := requestcontext.WithLanguage(r.Context(), supported[idx])
			w.Header().Set("Content-Language", supported[idx].String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
