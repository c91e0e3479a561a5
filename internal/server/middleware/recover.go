package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// Recover converts any panic below it into the uniform failure envelope
// so a request never dies with a raw stack trace on the wire.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s: %v", r.URL.Path, rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok":    false,
					"code":  "internal",
					"error": fmt.Sprintf("%v", rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
