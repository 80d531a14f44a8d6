package gateway

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTPHeader carries the one-time code for guarded control routes.
const OTPHeader = "X-OTP"

// RequireOTP guards next with a TOTP check against secret. An empty secret
// disables the guard.
func RequireOTP(secret string, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := strings.TrimSpace(r.Header.Get(OTPHeader))
			if code == "" || !validAt(code, secret, now()) {
				log.Printf("[gateway] rejected %s %s: invalid one-time code", r.Method, r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing " + OTPHeader})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validAt(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
