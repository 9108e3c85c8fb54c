// Package auth models the credential shapes accepted by
// SurrealDB-compatible servers and resolves raw field sets into
// exactly one of them.
package auth

// Level identifies the access level a credential signs in at.
type Level string

const (
	LevelRoot      Level = "root"
	LevelNamespace Level = "namespace"
	LevelDatabase  Level = "database"
	LevelScope     Level = "scope"
)

// Credentials is one resolved authentication shape. Implementations are
// immutable value types safe to share between goroutines.
type Credentials interface {
	// Level returns the access level this credential authenticates at.
	Level() Level

	// SigninVars returns the parameter object for the server's signin
	// call. Wire keys follow the server's convention: user, pass, NS,
	// DB, SC.
	SigninVars() map[string]any

	// Identity returns a loggable identity (username or scope name),
	// never a secret.
	Identity() string
}

// RootCredentials authenticate as a root user.
type RootCredentials struct {
	Username string
	Password string
}

func (c RootCredentials) Level() Level { return LevelRoot }

func (c RootCredentials) SigninVars() map[string]any {
	return map[string]any{
		"user": c.Username,
		"pass": c.Password,
	}
}

func (c RootCredentials) Identity() string { return c.Username }

// NamespaceCredentials authenticate as a namespace user.
type NamespaceCredentials struct {
	Username  string
	Password  string
	Namespace string
}

func (c NamespaceCredentials) Level() Level { return LevelNamespace }

func (c NamespaceCredentials) SigninVars() map[string]any {
	return map[string]any{
		"user": c.Username,
		"pass": c.Password,
		"NS":   c.Namespace,
	}
}

func (c NamespaceCredentials) Identity() string { return c.Username }

// DatabaseCredentials authenticate as a database user. This is the
// full-scope shape: namespace and database are both pinned.
type DatabaseCredentials struct {
	Username  string
	Password  string
	Namespace string
	Database  string
}

func (c DatabaseCredentials) Level() Level { return LevelDatabase }

func (c DatabaseCredentials) SigninVars() map[string]any {
	return map[string]any{
		"user": c.Username,
		"pass": c.Password,
		"NS":   c.Namespace,
		"DB":   c.Database,
	}
}

func (c DatabaseCredentials) Identity() string { return c.Username }

// ScopeCredentials authenticate through a scope (record access) and
// carry whichever of the optional fields were supplied.
type ScopeCredentials struct {
	Scope     string
	Namespace string
	Database  string
	Username  string
	Password  string
}

func (c ScopeCredentials) Level() Level { return LevelScope }

// SigninVars omits fields that were not supplied; scope signin accepts
// arbitrary subsets.
func (c ScopeCredentials) SigninVars() map[string]any {
	vars := map[string]any{
		"SC": c.Scope,
	}
	if c.Namespace != "" {
		vars["NS"] = c.Namespace
	}
	if c.Database != "" {
		vars["DB"] = c.Database
	}
	if c.Username != "" {
		vars["user"] = c.Username
	}
	if c.Password != "" {
		vars["pass"] = c.Password
	}
	return vars
}

func (c ScopeCredentials) Identity() string { return c.Scope }
