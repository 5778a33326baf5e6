package models

import "fmt"

// FilterMode selects how query text is matched against entries.
type FilterMode int

const (
	// Fuzzy matches the query as a case-insensitive substring or subsequence.
	Fuzzy FilterMode = iota
	// StrictDomain matches only entries whose identifier is the query domain or a subdomain of it.
	StrictDomain
)

func (m FilterMode) String() string {
	switch m {
	case Fuzzy:
		return "fuzzy"
	case StrictDomain:
		return "strict_domain"
	default:
		return fmt.Sprintf("FilterMode(%d)", int(m))
	}
}

// SearchMode selects how deep below the store root the search looks.
type SearchMode int

const (
	// Recursive searches the whole store tree.
	Recursive SearchMode = iota
	// TopLevelOnly searches immediate children of the store root.
	TopLevelOnly
)

func (m SearchMode) String() string {
	switch m {
	case Recursive:
		return "recursive"
	case TopLevelOnly:
		return "top_level_only"
	default:
		return fmt.Sprintf("SearchMode(%d)", int(m))
	}
}

// ListMode selects whether directories are listed alongside files.
type ListMode int

const (
	// FilesOnly lists password files only. Directories are not selectable credentials.
	FilesOnly ListMode = iota
	// FilesAndDirectories lists both.
	FilesAndDirectories
)

func (m ListMode) String() string {
	switch m {
	case FilesOnly:
		return "files_only"
	case FilesAndDirectories:
		return "files_and_directories"
	default:
		return fmt.Sprintf("ListMode(%d)", int(m))
	}
}

// SearchQuery is one search request. It is rebuilt on every input change.
type SearchQuery struct {
	Text   string
	Filter FilterMode
	Search SearchMode
	List   ListMode
}
