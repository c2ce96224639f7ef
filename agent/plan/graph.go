package plan

import (
	"fmt"
	"sort"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// Waves groups step indices into ready waves using Kahn's algorithm: wave 0
// holds every step without dependencies, wave n every step whose last
// dependency sits in wave n-1. Indices inside a wave keep plan order.
//
// Unknown dependencies are reported as ErrValidation; a cycle as
// ErrCycleDetected together with the ids still blocked by it.
func Waves(steps []contractx.Step) ([][]int, error) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}

	indegree := make([]int, len(steps))
	adjacency := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s -> %s", contractx.ErrValidation, s.ID, dep)
			}
			adjacency[j] = append(adjacency[j], i)
			indegree[i]++
		}
	}

	current := make([]int, 0, len(steps))
	for i := range steps {
		if indegree[i] == 0 {
			current = append(current, i)
		}
	}

	waves := make([][]int, 0, len(steps))
	visited := 0
	for len(current) > 0 {
		waves = append(waves, current)
		visited += len(current)

		next := make([]int, 0)
		for _, i := range current {
			for _, j := range adjacency[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		current = next
	}

	if visited != len(steps) {
		return nil, &cycleError{ids: cycleMembers(steps, indegree, adjacency)}
	}
	return waves, nil
}

// Order flattens Waves into one topological order.
func Order(steps []contractx.Step) ([]int, error) {
	waves, err := Waves(steps)
	if err != nil {
		return nil, err
	}
	order := make([]int, 0, len(steps))
	for _, w := range waves {
		order = append(order, w...)
	}
	return order, nil
}

type cycleError struct {
	ids []string
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("%v: %v", contractx.ErrCycleDetected, e.ids)
}

func (e *cycleError) Unwrap() error {
	return contractx.ErrCycleDetected
}

// cycleMembers narrows the steps Kahn could not release down to the ones that
// lie on a cycle by repeatedly dropping blocked steps with no blocked
// dependents.
func cycleMembers(steps []contractx.Step, indegree []int, adjacency [][]int) []string {
	blocked := make(map[int]bool)
	for i := range steps {
		if indegree[i] > 0 {
			blocked[i] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for i := range blocked {
			feedsBlocked := false
			for _, j := range adjacency[i] {
				if blocked[j] {
					feedsBlocked = true
					break
				}
			}
			if !feedsBlocked {
				delete(blocked, i)
				changed = true
			}
		}
	}

	ids := make([]string, 0, len(blocked))
	for i := range steps {
		if blocked[i] {
			ids = append(ids, steps[i].ID)
		}
	}
	return ids
}
