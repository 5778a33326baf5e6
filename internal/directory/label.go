package directory

// Label is the resolved display form of an entry path. The only implementations are
// IdentifierOnly, AccountOnly and IdentifierAndAccount, so a label always carries an
// identifier, an account, or both.
type Label interface {
	// Identifier returns the site identifier, if any.
	Identifier() (string, bool)
	// Account returns the account part, if any.
	Account() (string, bool)
	// Breadcrumb returns the path leading to the identifier, or "".
	Breadcrumb() string
	// Title is the primary display line.
	Title() string
	// Subtitle is the secondary display line; present only with both identifier and account.
	Subtitle() (string, bool)
	// SortKey orders labels in result lists.
	SortKey() string

	isLabel()
}

// IdentifierOnly is a label whose entry names a site but no account.
type IdentifierOnly struct {
	breadcrumb string
	identifier string
}

func (l IdentifierOnly) Identifier() (string, bool) { return l.identifier, true }
func (l IdentifierOnly) Account() (string, bool)    { return "", false }
func (l IdentifierOnly) Breadcrumb() string         { return l.breadcrumb }
func (l IdentifierOnly) Title() string              { return withCrumb(l.breadcrumb, l.identifier) }
func (l IdentifierOnly) Subtitle() (string, bool)   { return "", false }
func (l IdentifierOnly) SortKey() string            { return l.identifier }
func (IdentifierOnly) isLabel()                     {}

// AccountOnly is a label whose entry names an account but no site.
type AccountOnly struct {
	account string
}

func (l AccountOnly) Identifier() (string, bool) { return "", false }
func (l AccountOnly) Account() (string, bool)    { return l.account, true }
func (l AccountOnly) Breadcrumb() string         { return "" }
func (l AccountOnly) Title() string              { return l.account }
func (l AccountOnly) Subtitle() (string, bool)   { return "", false }
func (l AccountOnly) SortKey() string            { return l.account }
func (AccountOnly) isLabel()                     {}

// IdentifierAndAccount is a label naming both a site and an account on it.
type IdentifierAndAccount struct {
	breadcrumb string
	identifier string
	account    string
}

func (l IdentifierAndAccount) Identifier() (string, bool) { return l.identifier, true }
func (l IdentifierAndAccount) Account() (string, bool)    { return l.account, true }
func (l IdentifierAndAccount) Breadcrumb() string         { return l.breadcrumb }
func (l IdentifierAndAccount) Title() string              { return withCrumb(l.breadcrumb, l.identifier) }
func (l IdentifierAndAccount) Subtitle() (string, bool)   { return l.account, true }
func (l IdentifierAndAccount) SortKey() string            { return l.identifier }
func (IdentifierAndAccount) isLabel()                     {}

func withCrumb(crumb, s string) string {
	if crumb == "" {
		return s
	}
	return crumb + "/" + s
}
