package constants

const (
	// AuthTokenCookieName is the cookie consulted when no bearer token is sent.
	AuthTokenCookieName = "auth_token"
	// CSRFTokenCookieName holds the double-submit token for cookie sessions.
	CSRFTokenCookieName = "csrf_token"
	CSRFHeaderName      = "X-CSRF-Token"

	ContextKeyUserID    = "user_id"
	ContextKeyRole      = "role"
	ContextKeyRequestID = "request_id"
)
