package timeseries

import "strings"

// Well-known flag tokens.
const (
	FlagRange      = "RANGE"
	FlagSuspect    = "SUSPECT"
	FlagMiss       = "MISS"
	FlagDateInsert = "DATEINSERT"
)

// Flags is a set of flag tokens. Insertion order is kept so that String renders
// the same set the same way every time; it carries no other meaning.
type Flags []string

// ParseFlags splits a space-separated flag string into a set, dropping duplicates.
func ParseFlags(s string) Flags {
	var f Flags
	for _, tok := range strings.Fields(s) {
		f = f.Add(tok)
	}
	return f
}

// Has reports whether flag is in the set.
func (f Flags) Has(flag string) bool {
	for _, x := range f {
		if x == flag {
			return true
		}
	}
	return false
}

// Add returns a set with flag appended unless it is already present or empty.
// The receiver is never modified, so sets can be shared between records.
func (f Flags) Add(flag string) Flags {
	if flag == "" || f.Has(flag) {
		return f
	}
	out := make(Flags, len(f), len(f)+1)
	copy(out, f)
	return append(out, flag)
}

// Clone returns an independent copy. A nil set stays nil.
func (f Flags) Clone() Flags {
	if f == nil {
		return nil
	}
	out := make(Flags, len(f))
	copy(out, f)
	return out
}

// Len returns the number of flags.
func (f Flags) Len() int {
	return len(f)
}

// Equal reports whether both sets hold the same tokens, ignoring order.
func (f Flags) Equal(o Flags) bool {
	if len(f) != len(o) {
		return false
	}
	for _, x := range f {
		if !o.Has(x) {
			return false
		}
	}
	return true
}

// String joins the flags with single spaces.
func (f Flags) String() string {
	return strings.Join(f, " ")
}
