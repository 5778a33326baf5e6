// Package directory decodes password-store entry paths into display identifiers
// according to a directory convention.
package directory

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrMalformedEntry is returned for a path that cannot yield an identifier or an account.
// It signals a corrupted or misconfigured store, not a user-facing condition.
var ErrMalformedEntry = errors.New("malformed password store entry")

// ErrUnknownStructure is returned by ParseStructure for unrecognized names.
var ErrUnknownStructure = errors.New("unknown directory structure")

// EntryExtension is the extension of encrypted password files.
const EntryExtension = ".gpg"

// Structure is a directory convention of the password store.
type Structure int

const (
	// FileBased stores one directory per site and one file per account:
	// A/B/example.org/john@doe.org.gpg.
	FileBased Structure = iota
	// DirectoryBased stores one directory per site and one directory per account:
	// A/B/example.org/john@doe.org/password.gpg.
	DirectoryBased
	// EncryptedUsername keeps the username inside the encrypted file:
	// A/B/example.org/password.gpg.
	EncryptedUsername
	// Flat keeps account and site in a single file name: A/B/john@example.org.gpg.
	Flat
)

var structureNames = map[Structure]string{
	FileBased:         "file",
	DirectoryBased:    "directory",
	EncryptedUsername: "encrypted_username",
	Flat:              "flat",
}

var structureAliases = map[string]Structure{
	"file":                 FileBased,
	"directory-per-site":   FileBased,
	"directory":            DirectoryBased,
	"encrypted_username":   EncryptedUsername,
	"flat":                 Flat,
	"flat-with-separators": Flat,
}

// ParseStructure maps a configuration value to a Structure.
func ParseStructure(name string) (Structure, error) {
	s, ok := structureAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStructure, name)
	}
	return s, nil
}

func (s Structure) String() string {
	if name, ok := structureNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Structure(%d)", int(s))
}

// accountSeparator splits "account@identifier" leaves under the Flat convention.
const accountSeparator = "@"

// encryptedUsernameLeaf is the conventional file name when the username lives inside the file.
const encryptedUsernameLeaf = "password"

// Resolve derives the display label of relPath.
func (s Structure) Resolve(relPath string) (Label, error) {
	segs, err := split(relPath)
	if err != nil {
		return nil, err
	}
	n := len(segs)
	leaf := segs[n-1]

	if n == 1 && s != Flat {
		return IdentifierOnly{identifier: leaf}, nil
	}

	switch s {
	case FileBased:
		return IdentifierAndAccount{
			breadcrumb: join(segs[:n-2]),
			identifier: segs[n-2],
			account:    leaf,
		}, nil
	case DirectoryBased:
		if n == 2 {
			return AccountOnly{account: segs[0] + "/" + leaf}, nil
		}
		return IdentifierAndAccount{
			breadcrumb: join(segs[:n-3]),
			identifier: segs[n-3],
			account:    segs[n-2] + "/" + leaf,
		}, nil
	case EncryptedUsername:
		if leaf == encryptedUsernameLeaf {
			return IdentifierOnly{breadcrumb: join(segs[:n-2]), identifier: segs[n-2]}, nil
		}
		return IdentifierAndAccount{
			breadcrumb: join(segs[:n-2]),
			identifier: segs[n-2],
			account:    leaf,
		}, nil
	case Flat:
		crumb := join(segs[:n-1])
		i := strings.LastIndex(leaf, accountSeparator)
		if i <= 0 || i == len(leaf)-1 {
			return IdentifierOnly{breadcrumb: crumb, identifier: leaf}, nil
		}
		return IdentifierAndAccount{
			breadcrumb: crumb,
			identifier: leaf[i+1:],
			account:    leaf[:i],
		}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStructure, s)
	}
}

// split validates relPath and returns its segments with the entry extension
// stripped from the leaf.
func split(relPath string) ([]string, error) {
	p := filepath.ToSlash(strings.TrimSpace(relPath))
	if p == "" || strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, relPath)
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, relPath)
	}

	segs := strings.Split(p, "/")
	leaf := strings.TrimSuffix(segs[len(segs)-1], EntryExtension)
	if leaf == "" {
		return nil, fmt.Errorf("%w: %q has an empty name", ErrMalformedEntry, relPath)
	}
	segs[len(segs)-1] = leaf
	return segs, nil
}

func join(segs []string) string {
	return strings.Join(segs, "/")
}
