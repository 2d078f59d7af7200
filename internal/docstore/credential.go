package docstore

import "context"

// Credential authenticates a user-scoped call. JWT takes precedence over Session.
type Credential struct {
	JWT     string
	Session string
}

// IsZero reports whether no credential material is present.
func (c Credential) IsZero() bool {
	return c.JWT == "" && c.Session == ""
}

type credentialKey struct{}

// WithCredential returns a context that carries cred to store calls.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFrom returns the credential attached to ctx, if any.
func CredentialFrom(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(Credential)
	if !ok || cred.IsZero() {
		return Credential{}, false
	}
	return cred, true
}
