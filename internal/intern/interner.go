// Package intern maps region identifier strings to dense integer handles.
package intern

import "fmt"

// ID is a dense handle issued by one Interner, in first-seen order from 0.
type ID uint32

func (id ID) String() string { return fmt.Sprintf("#%d", uint32(id)) }

// Interner owns the canonical copy of every interned string. It is not safe
// for concurrent mutation; Resolve and Len may be called concurrently once
// interning is finished.
type Interner struct {
	ids  map[string]ID
	strs []string
}

func New() *Interner {
	return &Interner{ids: make(map[string]ID)}
}

// Intern returns the handle for s, issuing the next one if s is new.
func (in *Interner) Intern(s string) ID {
	if id, ok := in.ids[s]; ok {
		return id
	}
	id := ID(len(in.strs))
	in.strs = append(in.strs, s)
	in.ids[s] = id
	return id
}

// Lookup returns the handle for s without interning it.
func (in *Interner) Lookup(s string) (ID, bool) {
	id, ok := in.ids[s]
	return id, ok
}

// Resolve returns the string behind id, or false if this Interner never issued it.
func (in *Interner) Resolve(id ID) (string, bool) {
	if int(id) >= len(in.strs) {
		return "", false
	}
	return in.strs[id], true
}

// Len is the number of distinct strings interned.
func (in *Interner) Len() int { return len(in.strs) }
