package common

// Request parameter names shared by the HTTP adapter and the client.
const (
	ParamUID       = "uid"
	ParamUsername  = "username"
	ParamPassword  = "password"
	ParamSignature = "signature"
	ParamTimestamp = "timestamp"
)

// AdminTokenHeaderName carries the admin bearer token.
const AdminTokenHeaderName = "Authorization"
