package domain

import "slices"

// Reactions maps an emoji to the sorted set of users who reacted with it.
// An emoji key never maps to an empty set.
type Reactions map[string][]string

// Toggle flips userID's reaction with emoji and returns the new mapping.
// The receiver is not modified. Toggling twice with the same arguments
// returns a mapping equal to the original.
func (r Reactions) Toggle(userID, emoji string) Reactions {
	out := make(Reactions, len(r)+1)
	for k, v := range r {
		out[k] = slices.Clone(v)
	}

	users, ok := out[emoji]
	if !ok {
		out[emoji] = []string{userID}
		return out
	}

	i, found := slices.BinarySearch(users, userID)
	if found {
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(out, emoji)
		} else {
			out[emoji] = users
		}
		return out
	}
	out[emoji] = slices.Insert(users, i, userID)
	return out
}

// Has reports whether userID reacted with emoji.
func (r Reactions) Has(userID, emoji string) bool {
	_, found := slices.BinarySearch(r[emoji], userID)
	return found
}
