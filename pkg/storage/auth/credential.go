// Package auth holds the pluggable credential and request-signing
// protocol backends build on: a Loader resolves credentials with a
// fixed priority (explicit value, then environment, then whatever
// implicit source the backend supports), a cache reuses them until
// close to expiry, and a Signer applies them to an outgoing request in
// header mode or query mode.
package auth

import (
	"context"
	"os"
	"time"
)

// Credential is a resolved set of signing secrets with an optional
// validity window. A zero Expiry means the credential does not expire.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SecurityToken   string
	Expiry          time.Time
}

// Valid reports whether the credential carries usable secrets.
func (c *Credential) Valid() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ExpiresWithin reports whether the credential expires inside the given
// margin from now.
func (c *Credential) ExpiresWithin(margin time.Duration) bool {
	if c == nil || c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(c.Expiry)
}

// Loader resolves a credential. Returning (nil, nil) means this source
// has nothing, letting a chain fall through to the next one.
type Loader interface {
	Load(ctx context.Context) (*Credential, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Credential, error)

func (f LoaderFunc) Load(ctx context.Context) (*Credential, error) { return f(ctx) }

// StaticLoader always returns the explicit credential it was built
// with, or nothing when the credential is incomplete.
type StaticLoader struct {
	cred Credential
}

func NewStaticLoader(cred Credential) *StaticLoader {
	return &StaticLoader{cred: cred}
}

func (l *StaticLoader) Load(context.Context) (*Credential, error) {
	if !l.cred.Valid() {
		return nil, nil
	}
	c := l.cred
	return &c, nil
}

// EnvLoader reads a credential from named environment variables.
// TokenVar may be empty for services without session tokens.
type EnvLoader struct {
	IDVar     string
	SecretVar string
	TokenVar  string
}

func (l *EnvLoader) Load(context.Context) (*Credential, error) {
	cred := &Credential{
		AccessKeyID:     os.Getenv(l.IDVar),
		SecretAccessKey: os.Getenv(l.SecretVar),
	}
	if l.TokenVar != "" {
		cred.SecurityToken = os.Getenv(l.TokenVar)
	}
	if !cred.Valid() {
		return nil, nil
	}
	return cred, nil
}

// ChainLoader consults loaders in order and returns the first resolved
// credential. The order is the contract: explicit configuration first,
// then environment, then any implicit source.
type ChainLoader []Loader

func (c ChainLoader) Load(ctx context.Context) (*Credential, error) {
	for _, l := range c {
		cred, err := l.Load(ctx)
		if err != nil {
			return nil, err
		}
		if cred.Valid() {
			return cred, nil
		}
	}
	return nil, nil
}
