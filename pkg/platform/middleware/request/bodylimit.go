package request

import (
	"net/http"

	"zkgate/pkg/platform/httputil"
)

// BodyLimit caps gateway request bodies at maxBytes. A declared
// Content-Length over the cap is answered with 413 before the handler runs;
// bodies without a length are wrapped in http.MaxBytesReader so the JSON
// decoder fails once it reads past the cap.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteBodyTooLarge(w)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
