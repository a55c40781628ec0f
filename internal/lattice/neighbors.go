package lattice

// Neighbour slots in the array returned by Neighbors.
const (
	Left = iota
	Right
	Up
	Down
)

// Neighbors returns the periodic neighbours of site i in the order left,
// right, up, down. Left and right move along y; up and down move along x.
func (l *Lattice) Neighbors(i int) [4]int {
	x, y := i/l.height, i%l.height

	var nb [4]int
	if y > 0 {
		nb[Left] = i - 1
	} else {
		nb[Left] = i - 1 + l.height
	}
	if y < l.height-1 {
		nb[Right] = i + 1
	} else {
		nb[Right] = i + 1 - l.height
	}
	if x > 0 {
		nb[Up] = i - l.height
	} else {
		nb[Up] = i - l.height + l.size
	}
	if x < l.width-1 {
		nb[Down] = i + l.height
	} else {
		nb[Down] = i + l.height - l.size
	}
	return nb
}
