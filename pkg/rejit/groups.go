package rejit

// NamedGroups maps group numbers to names for every named group.
func (re *Regexp) NamedGroups() map[int]string {
	m := make(map[int]string)
	for i, name := range re.names {
		if name != "" {
			m[i] = name
		}
	}
	return m
}

// SubexpIndex returns the number of the group called name, or -1.
func (re *Regexp) SubexpIndex(name string) int {
	if name == "" {
		return -1
	}
	for i, n := range re.names {
		if n == name {
			return i
		}
	}
	return -1
}

// LastIndex returns the number of the group that ended last in slots, or
// -1 when no group other than the whole match participated. Ties go to the
// lower number, which is the enclosing group.
func (re *Regexp) LastIndex(slots []int) int {
	last, end := -1, -1
	for g := 1; 2*g+1 < len(slots) && g < len(re.names); g++ {
		if slots[2*g] < 0 || slots[2*g+1] < 0 {
			continue
		}
		if slots[2*g+1] > end {
			last, end = g, slots[2*g+1]
		}
	}
	return last
}

// LastGroup returns the name of the group that ended last, or "" when that
// group is unnamed or no group participated.
func (re *Regexp) LastGroup(slots []int) string {
	if g := re.LastIndex(slots); g > 0 {
		return re.names[g]
	}
	return ""
}
