package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCredentials indicates the supplied fields match none of
// the accepted credential shapes.
var ErrUnsupportedCredentials = errors.New("unsupported credential configuration")

// Fields is a raw, unvalidated credential field set as it arrives from
// configuration or the environment. Empty strings mean absent.
type Fields struct {
	Username  string
	Password  string
	Namespace string
	Database  string
	Scope     string
}

// Resolve maps a field set onto exactly one credential shape. Shapes
// are tried in order of decreasing specificity, so a field set carrying
// both full database credentials and a scope resolves to the database
// shape. A set matching no shape (for example a password without a
// username) returns ErrUnsupportedCredentials.
func Resolve(f Fields) (Credentials, error) {
	switch {
	case f.Username != "" && f.Password != "" && f.Namespace != "" && f.Database != "":
		return DatabaseCredentials{
			Username:  f.Username,
			Password:  f.Password,
			Namespace: f.Namespace,
			Database:  f.Database,
		}, nil

	case f.Username != "" && f.Password != "" && f.Namespace != "":
		return NamespaceCredentials{
			Username:  f.Username,
			Password:  f.Password,
			Namespace: f.Namespace,
		}, nil

	case f.Username != "" && f.Password != "":
		return RootCredentials{
			Username: f.Username,
			Password: f.Password,
		}, nil

	case f.Scope != "":
		return ScopeCredentials{
			Scope:     f.Scope,
			Namespace: f.Namespace,
			Database:  f.Database,
			Username:  f.Username,
			Password:  f.Password,
		}, nil

	default:
		return nil, fmt.Errorf("%w: have %s", ErrUnsupportedCredentials, describeFields(f))
	}
}

// describeFields names the fields present in f without exposing their
// values. Secrets never reach error messages or logs.
func describeFields(f Fields) string {
	var present []string
	if f.Username != "" {
		present = append(present, "username")
	}
	if f.Password != "" {
		present = append(present, "password")
	}
	if f.Namespace != "" {
		present = append(present, "namespace")
	}
	if f.Database != "" {
		present = append(present, "database")
	}
	if f.Scope != "" {
		present = append(present, "scope")
	}
	if len(present) == 0 {
		return "no fields"
	}
	return strings.Join(present, ", ")
}
