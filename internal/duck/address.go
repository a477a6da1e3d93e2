package duck

import "strings"

// cloudPrefix is the MotherDuck address scheme. Anything starting with it is
// a cloud address, never a local file.
const cloudPrefix = "md:"

type AddressKind int

const (
	AddressInMemory AddressKind = iota
	AddressLocalFile
	AddressCloudDefault
	AddressCloudNamed
)

// Address is the resolved form of a raw database address string. Exactly one
// kind is active; the value is immutable once resolved.
type Address struct {
	Kind AddressKind

	// Path is the local database file path when Kind is AddressLocalFile.
	Path string

	// Name is the cloud database name when Kind is AddressCloudNamed.
	Name string
}

// ResolveAddress parses a raw database address. It is total: an unrecognized
// form is a local file path taken verbatim, and any failure to open it is
// deferred to connection time.
func ResolveAddress(raw string) Address {
	switch {
	case raw == "" || raw == ":memory:":
		return Address{Kind: AddressInMemory}
	case strings.HasPrefix(raw, cloudPrefix):
		name := strings.TrimPrefix(raw, cloudPrefix)
		if name == "" {
			return Address{Kind: AddressCloudDefault}
		}
		return Address{Kind: AddressCloudNamed, Name: name}
	default:
		return Address{Kind: AddressLocalFile, Path: raw}
	}
}

// IsCloud reports whether the address targets MotherDuck.
func (a Address) IsCloud() bool {
	return a.Kind == AddressCloudDefault || a.Kind == AddressCloudNamed
}

func (a Address) String() string {
	switch a.Kind {
	case AddressInMemory:
		return ":memory:"
	case AddressCloudDefault:
		return cloudPrefix
	case AddressCloudNamed:
		return cloudPrefix + a.Name
	default:
		return a.Path
	}
}
