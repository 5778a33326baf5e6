package models

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidOrigin is returned when an origin identifier is empty or not a valid host/package.
	ErrInvalidOrigin = errors.New("invalid form origin")
	// ErrMissingOrigin is returned when neither a web nor an app origin was supplied.
	ErrMissingOrigin = errors.New("no form origin supplied")
	// ErrAmbiguousOrigin is returned when both a web and an app origin were supplied.
	ErrAmbiguousOrigin = errors.New("both web and app form origins supplied")
)

const (
	webKeyPrefix = "web;"
	appKeyPrefix = "app;"
)

// AppLabeler resolves an application package identifier to a human-readable name.
type AppLabeler interface {
	AppLabel(pkg string) (string, error)
}

// AppLabelerFunc adapts a function to AppLabeler.
type AppLabelerFunc func(pkg string) (string, error)

// AppLabel calls f(pkg).
func (f AppLabelerFunc) AppLabel(pkg string) (string, error) { return f(pkg) }

// FormOrigin identifies the requester of an autofill: a web host or an application package.
// The only implementations are WebOrigin and AppOrigin.
type FormOrigin interface {
	// Identifier returns the normalized host or package identifier.
	Identifier() string
	// Key returns the storage key for matches. Web and app keys never collide.
	Key() string
	// PrettyIdentifier returns a display label. With untrusted set the label is quoted to
	// mark it as claimed by the requester and not yet validated.
	PrettyIdentifier(labeler AppLabeler, untrusted bool) string
	String() string

	isFormOrigin()
}

// WebOrigin is a form origin identified by a web host.
type WebOrigin struct {
	host string
}

// NewWebOrigin normalizes raw (a host or URL) into a WebOrigin.
// Scheme, port, path and trailing dot are dropped and the host is converted to lower-case
// ASCII, so Unicode look-alikes keep their punycode form and never equal the ASCII host.
func NewWebOrigin(raw string) (WebOrigin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return WebOrigin{}, fmt.Errorf("%w: empty web origin", ErrInvalidOrigin)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return WebOrigin{}, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return WebOrigin{}, fmt.Errorf("%w: no host in %q", ErrInvalidOrigin, raw)
	}
	if ip := net.ParseIP(host); ip != nil {
		return WebOrigin{host: ip.String()}, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return WebOrigin{}, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	return WebOrigin{host: ascii}, nil
}

func (o WebOrigin) Identifier() string { return o.host }
func (o WebOrigin) Key() string        { return webKeyPrefix + o.host }
func (o WebOrigin) String() string     { return "web:" + o.host }
func (WebOrigin) isFormOrigin()        {}

// PrettyIdentifier returns the host; quoted when untrusted.
func (o WebOrigin) PrettyIdentifier(_ AppLabeler, untrusted bool) string {
	if untrusted {
		return quote(o.host)
	}
	return o.host
}

// AppOrigin is a form origin identified by an application package.
type AppOrigin struct {
	pkg string
}

// NewAppOrigin validates pkg and returns an AppOrigin.
func NewAppOrigin(pkg string) (AppOrigin, error) {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return AppOrigin{}, fmt.Errorf("%w: empty app origin", ErrInvalidOrigin)
	}
	if strings.ContainsAny(pkg, " \t\n;") {
		return AppOrigin{}, fmt.Errorf("%w: package %q", ErrInvalidOrigin, pkg)
	}
	return AppOrigin{pkg: pkg}, nil
}

func (o AppOrigin) Identifier() string { return o.pkg }
func (o AppOrigin) Key() string        { return appKeyPrefix + o.pkg }
func (o AppOrigin) String() string     { return "app:" + o.pkg }
func (AppOrigin) isFormOrigin()        {}

// PrettyIdentifier asks labeler for the application name and falls back to the package
// identifier. The name is supplied by the app itself, so it is quoted when untrusted.
func (o AppOrigin) PrettyIdentifier(labeler AppLabeler, untrusted bool) string {
	label := o.pkg
	if labeler != nil {
		if l, err := labeler.AppLabel(o.pkg); err == nil && strings.TrimSpace(l) != "" {
			label = strings.TrimSpace(l)
		}
	}
	if untrusted {
		return quote(label)
	}
	return label
}

func quote(s string) string { return "“" + s + "”" }

// OriginFromExtras builds the origin of an autofill request. Exactly one of web and app
// must be non-empty.
func OriginFromExtras(web, app string) (FormOrigin, error) {
	web, app = strings.TrimSpace(web), strings.TrimSpace(app)
	switch {
	case web != "" && app != "":
		return nil, ErrAmbiguousOrigin
	case web != "":
		return NewWebOrigin(web)
	case app != "":
		return NewAppOrigin(app)
	default:
		return nil, ErrMissingOrigin
	}
}

// ParseOriginKey is the inverse of FormOrigin.Key.
func ParseOriginKey(key string) (FormOrigin, error) {
	switch {
	case strings.HasPrefix(key, webKeyPrefix):
		return NewWebOrigin(strings.TrimPrefix(key, webKeyPrefix))
	case strings.HasPrefix(key, appKeyPrefix):
		return NewAppOrigin(strings.TrimPrefix(key, appKeyPrefix))
	default:
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidOrigin, key)
	}
}
