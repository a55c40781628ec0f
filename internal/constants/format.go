package constants

// SpinLayout selects how spin snapshots are serialized.
type SpinLayout string

const (
	// SpinLayoutBinary writes one signed byte per site.
	SpinLayoutBinary SpinLayout = "binary"

	// SpinLayoutLine writes one 0/1 character per site on a single line.
	SpinLayoutLine SpinLayout = "line"

	// SpinLayoutGrid writes width rows of height characters followed by "#".
	SpinLayoutGrid SpinLayout = "grid"
)

// Valid returns true if the layout is a recognized value.
func (l SpinLayout) Valid() bool {
	switch l {
	case SpinLayoutBinary, SpinLayoutLine, SpinLayoutGrid:
		return true
	}
	return false
}

// Binary reports whether the layout produces a binary file.
func (l SpinLayout) Binary() bool {
	return l == SpinLayoutBinary
}

// String returns the string representation of the layout.
func (l SpinLayout) String() string {
	return string(l)
}
