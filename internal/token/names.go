package token

import "fmt"

// NameDictionary stands in for the external name-dictionary file (spec.md
// §1 "the name-dictionary file... supply account identity given an opaque
// login blob" — in practice a per-game word list indexed by
// CLIENT_SET_NAME_PATTERN's four (index, flag) pairs, spec.md §6).
type NameDictionary interface {
	Word(index int) (string, error)
}

// wordTable is a minimal, fixed NameDictionary sufficient to make the
// cluster runnable and testable; a real deployment would load this from
// the game's NameMaster file.
type wordTable []string

// DefaultNames returns a small built-in dictionary good enough to
// exercise CLIENT_SET_NAME_PATTERN end to end.
func DefaultNames() NameDictionary {
	return wordTable{
		"Mickey", "Donald", "Goofy", "Minnie", "Daisy", "Pluto",
		"Sir", "Captain", "Doctor", "Professor",
		"the", "of", "Toon", "town",
	}
}

func (t wordTable) Word(index int) (string, error) {
	if index < 0 || index >= len(t) {
		return "", fmt.Errorf("name dictionary: index %d out of range", index)
	}
	return t[index], nil
}
