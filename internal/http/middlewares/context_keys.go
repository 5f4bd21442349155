package middlewares

const (
	CtxClaims    = "auth.claims"
	CtxRequestID = "request_id"
)
