package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// CredentialSource identifies where a request credential was found
type CredentialSource int

const (
	// SourceNone means no recognizable credential was present
	SourceNone CredentialSource = iota
	// SourceBearer is an "Authorization: Bearer <token>" header
	SourceBearer
	// SourceToken is an "Authorization: Token <token>" header
	SourceToken
	// SourceBasic is the password part of an "Authorization: Basic" header
	SourceBasic
	// SourceHeader is the "X-Token" fallback header
	SourceHeader
)

func (s CredentialSource) String() string {
	switch s {
	case SourceBearer:
		return "bearer"
	case SourceToken:
		return "token"
	case SourceBasic:
		return "basic"
	case SourceHeader:
		return "x-token"
	default:
		return "none"
	}
}

// Credential is a session token extracted from a request along with where it
// came from
type Credential struct {
	Token  string
	Source CredentialSource
}

// ExtractCredential pulls a session token from the request. The Authorization
// header is checked first (Bearer, Token, then Basic where the password part
// carries the token), falling back to the X-Token header. A malformed or
// empty credential yields SourceNone.
func ExtractCredential(r *http.Request) Credential {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, rest, found := strings.Cut(header, " ")
		if found {
			rest = strings.TrimSpace(rest)
			switch {
			case strings.EqualFold(scheme, "Bearer") && rest != "":
				return Credential{Token: rest, Source: SourceBearer}
			case strings.EqualFold(scheme, "Token") && rest != "":
				return Credential{Token: rest, Source: SourceToken}
			case strings.EqualFold(scheme, "Basic"):
				if token := basicPassword(rest); token != "" {
					return Credential{Token: token, Source: SourceBasic}
				}
			}
		}
		return Credential{Source: SourceNone}
	}

	if token := strings.TrimSpace(r.Header.Get("X-Token")); token != "" {
		return Credential{Token: token, Source: SourceHeader}
	}

	return Credential{Source: SourceNone}
}

// basicPassword decodes a Basic credential and returns its password part
func basicPassword(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	_, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return ""
	}
	return password
}
