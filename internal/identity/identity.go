package identity

import (
	"context"
	"net/http"
	"time"
)

// Credential is the caller's opaque bearer token. It is forwarded unchanged on
// every outbound call and never interpreted past verification.
type Credential string

// Header renders the credential as an Authorization header value.
func (c Credential) Header() string {
	return "Bearer " + string(c)
}

// Identity is a verified capability to act on behalf of one owner. The zero
// value carries no authority.
type Identity struct {
	ownerID    int64
	credential Credential
	expiresAt  time.Time
}

// Trusted builds an Identity for a credential the caller has already verified
// out of band, such as a token minted by Issuer in tests or tooling.
func Trusted(ownerID int64, credential Credential, expiresAt time.Time) Identity {
	return Identity{ownerID: ownerID, credential: credential, expiresAt: expiresAt}
}

// OwnerID returns the owner this identity acts for.
func (i Identity) OwnerID() int64 { return i.ownerID }

// Credential returns the bearer credential to forward downstream.
func (i Identity) Credential() Credential { return i.credential }

// ExpiresAt returns the expiry instant asserted by the issuer.
func (i Identity) ExpiresAt() time.Time { return i.expiresAt }

// IsZero reports whether the identity was never verified.
func (i Identity) IsZero() bool { return i.ownerID == 0 && i.credential == "" }

// Owns reports whether the identity acts for ownerID.
func (i Identity) Owns(ownerID int64) bool {
	return !i.IsZero() && i.ownerID == ownerID
}

type ctxKey struct{}

// WithIdentity attaches id to ctx. Only the HTTP layer uses this; orchestrators
// receive the identity as an explicit argument.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && !id.IsZero()
}

// Forward sets the caller's credential on an outbound request.
func Forward(req *http.Request, id Identity) {
	if id.credential == "" {
		return
	}
	req.Header.Set("Authorization", id.credential.Header())
}
