package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"finlern/internal/apierror"
	"finlern/internal/csrf"
	"finlern/internal/logging"
)

// CSRFHeader carries the token for clients that cannot rely on Origin.
const CSRFHeader = "X-CSRF-Token"

// csrfBodyField is read from JSON bodies when the header is absent.
const csrfBodyField = "csrfToken"

// TokenSource returns the CSRF token bound to the caller's session.
type TokenSource interface {
	CSRFToken(r *http.Request) string
}

type CSRFOptions struct {
	// EnforceSafe validates GET and HEAD too, for endpoints that leak data.
	EnforceSafe bool
	// Sessions may be nil; then strict token mode never matches.
	Sessions TokenSource
	// MaxTokenBody caps how much of a JSON body is read looking for the
	// token. Defaults to 64 KiB.
	MaxTokenBody int64
}

const defaultMaxTokenBody = 64 << 10

// CSRF rejects state-changing requests whose origin is not trusted. The body
// token is only looked for when Origin and Referer did not admit the request.
func CSRF(v *csrf.Validator, opts CSRFOptions, logger logging.Logger) func(http.Handler) http.Handler {
	maxBody := opts.MaxTokenBody
	if maxBody <= 0 {
		maxBody = defaultMaxTokenBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := csrf.Request{
				Method:      r.Method,
				Origin:      r.Header.Get("Origin"),
				Referer:     r.Header.Get("Referer"),
				Token:       r.Header.Get(CSRFHeader),
				EnforceSafe: opts.EnforceSafe,
			}
			if opts.Sessions != nil {
				req.SessionToken = opts.Sessions.CSRFToken(r)
			}

			reason, err := v.Check(req)
			if err != nil && req.Token == "" && !csrf.IsSafeMethod(r.Method) {
				if req.Token = bodyToken(r, maxBody); req.Token != "" {
					reason, err = v.Check(req)
				}
			}
			if err != nil {
				logging.LogSecurityEvent(r.Context(), logger, "csrf_rejected",
					"method", r.Method,
					"path", r.URL.Path,
					"origin", req.Origin,
					"referer", req.Referer,
					"client_ip", ClientIP(r),
				)
				apierror.Forbidden("").WriteJSON(w)
				return
			}
			if reason == csrf.ReasonLocalhost {
				logger.Debug(r.Context(), "csrf admitted localhost origin", "origin", logging.SanitizeForLog(req.Origin))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyToken reads at most limit bytes of a JSON body looking for the token
// field. The bytes read are put back in front of the rest of the body. A
// body longer than limit yields no token.
func bodyToken(r *http.Request, limit int64) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return ""
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil || int64(len(head)) > limit {
		return ""
	}

	var peek map[string]json.RawMessage
	if json.Unmarshal(head, &peek) != nil {
		return ""
	}
	var token string
	if raw, ok := peek[csrfBodyField]; ok {
		_ = json.Unmarshal(raw, &token)
	}
	return token
}

type readCloser struct {
	io.Reader
	io.Closer
}
