package engine

// PathStep is one move of a planned path
type PathStep struct {
	Direction Direction `json:"direction"`
	To        Position  `json:"to"`
}

// Path is the result of a bounded search. When Reached is false the steps
// lead to the last expanded node followed by one corrective random step,
// or are empty when even that step is impossible.
type Path struct {
	Steps   []PathStep `json:"steps"`
	Reached bool       `json:"reached"`
}

// FindPath runs a breadth-first search from one cell to another, confined
// to the square of radius sensorRange around from. Neighbour order is
// shuffled per node. The search stops the first time the destination is
// dequeued, so the path is the shortest inside the window only.
func FindPath(g *Grid, from, to Position, sensorRange int, dirs []Direction, rng Random) Path {
	if len(dirs) == 0 {
		dirs = Compass()
	}
	win := g.sensorWindow(from, sensorRange)

	cameFrom := map[Position]pathLink{from: {prev: from}}
	queue := []Position{from}
	last := from

	order := make([]Direction, len(dirs))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		last = cur

		if cur == to {
			return Path{Steps: reconstruct(cameFrom, from, to), Reached: true}
		}

		copy(order, dirs)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, d := range order {
			next := cur.Add(d)
			if !win.contains(next) || g.At(next) == Obstacle {
				continue
			}
			if _, seen := cameFrom[next]; seen {
				continue
			}
			cameFrom[next] = pathLink{prev: cur, dir: d}
			queue = append(queue, next)
		}
	}

	steps := reconstruct(cameFrom, from, last)
	if step, ok := correctiveStep(g, last, dirs, rng); ok {
		steps = append(steps, step)
	}
	return Path{Steps: steps}
}

type pathLink struct {
	prev Position
	dir  Direction
}

// reconstruct walks the parent links from dest back to start and reverses them
func reconstruct(links map[Position]pathLink, start, dest Position) []PathStep {
	var steps []PathStep
	for cur := dest; cur != start; {
		l := links[cur]
		steps = append(steps, PathStep{Direction: l.dir, To: cur})
		cur = l.prev
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// correctiveStep picks one random in-grid, non-obstacle neighbour of p
func correctiveStep(g *Grid, p Position, dirs []Direction, rng Random) (PathStep, bool) {
	var options []PathStep
	for _, d := range dirs {
		next := p.Add(d)
		if g.InBounds(next) && g.At(next) != Obstacle {
			options = append(options, PathStep{Direction: d, To: next})
		}
	}
	if len(options) == 0 {
		return PathStep{}, false
	}
	return options[rng.IntN(len(options))], true
}
