// Package auth authenticates operators of the admin API.
//
// Operators present an HS256 JWT minted by "stingray-gateway token". The
// token's subject is the operator name; it is recorded as the actor of
// every policy change made through the API.
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Admin.JWTSecret))
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
//
// Handlers read the operator with AdminFromContext.
package auth
