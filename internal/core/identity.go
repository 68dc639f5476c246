package core

// Trusted internal identity headers. The API honors the identity pair only
// when HeaderInternalSecret carries the process secret.
const (
	HeaderInternalSecret = "X-Internal-Secret"
	HeaderInternalUser   = "X-Internal-User-Id"
	HeaderInternalOrg    = "X-Internal-Organization-Id"
)
