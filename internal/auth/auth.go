package auth

// User is the authenticated participant identity this core requires.
// Session issuance and verification live outside the daemon.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Name returns the display name, falling back to the email address for
// accounts that never set one.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Provider exposes the current session identity, if any.
type Provider interface {
	// CurrentUser returns the bound user and true, or a zero User and false
	// when no authenticated session exists.
	CurrentUser() (User, bool)
}

// StaticProvider is a Provider bound to one fixed identity, as supplied by
// daemon configuration after external login.
type StaticProvider struct {
	user  User
	bound bool
}

// NewStaticProvider creates a provider for the given identity. An empty user
// id means no session is bound.
func NewStaticProvider(u User) *StaticProvider {
	return &StaticProvider{user: u, bound: u.ID != ""}
}

func (p *StaticProvider) CurrentUser() (User, bool) {
	if !p.bound {
		return User{}, false
	}
	return p.user, true
}
