package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware はプレゼンテーション層のオリジンを許可するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、ワイルドカード(*)は扱わない。
// Originヘッダーが一致した場合はそのオリジンを返し、Originが無いリクエストには先頭のオリジンを返す。
// 一致しないOriginにはAccess-Control-Allow-Originを付けない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin, ok := matchOrigin(origins, r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(origins []string, requested string) (string, bool) {
	if len(origins) == 0 {
		return "", false
	}
	if requested == "" {
		return origins[0], true
	}
	for _, o := range origins {
		if strings.EqualFold(o, requested) {
			return requested, true
		}
	}
	return "", false
}
