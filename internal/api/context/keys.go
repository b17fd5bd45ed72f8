package context

type Key string

const (
	Claims    Key = "claims"     // *auth.Claims from a session token
	KeyClaims Key = "key_claims" // *keys.Claims from an API key
	Params    Key = "params"     // httprouter.Params
)
