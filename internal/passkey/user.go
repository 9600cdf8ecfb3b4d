package passkey

import (
	"github.com/go-webauthn/webauthn/webauthn"
)

// ceremonyUser adapts a user record for the webauthn library. The id exposed
// to authenticators is the opaque user handle, never the server-side user id.
type ceremonyUser struct {
	name        string
	handle      []byte
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.handle
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
