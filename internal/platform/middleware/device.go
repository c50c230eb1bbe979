package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type contextKeyDeviceClass struct{}

// GetDeviceClass retrieves the device classification ("mobile" or "desktop")
// from the context. Empty when the middleware did not run.
func GetDeviceClass(ctx context.Context) string {
	if c, ok := ctx.Value(contextKeyDeviceClass{}).(string); ok {
		return c
	}
	return ""
}

// WithDeviceClass injects a device class into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithDeviceClass(ctx context.Context, class string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceClass{}, class)
}

// DeviceClass tags each request as mobile or desktop from the User-Agent.
// The checkout UI renders a different QR flow on mobile, so operators want
// the split visible in logs.
func DeviceClass(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())
		class := "desktop"
		if ua.Mobile() {
			class = "mobile"
		}
		next.ServeHTTP(w, r.WithContext(WithDeviceClass(r.Context(), class)))
	})
}
