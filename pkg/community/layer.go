package community

import "fmt"

// ID is the id of the k-th community of an iteration.
func ID(iteration, k int) string {
	return fmt.Sprintf("community_%d_%d", iteration, k)
}

// Layer builds the graph clustered at iteration. base holds the entity level
// graph; parents[j] maps the nodes of layer j (layer 0 being base) to their
// community at layer j+1. Iteration 1 clusters base itself, iteration i
// clusters the communities of layer i-1 and so needs parents[0..i-2].
func Layer(base *Graph, parents []map[string]string, iteration int) (*Graph, error) {
	if iteration < 1 {
		return nil, fmt.Errorf("invalid iteration %d", iteration)
	}
	if iteration == 1 {
		return base, nil
	}
	if len(parents) < iteration-1 {
		return nil, fmt.Errorf("iteration %d needs %d membership layers, have %d", iteration, iteration-1, len(parents))
	}
	chain := parents[:iteration-1]
	return Aggregate(base, func(id string) string {
		for _, p := range chain {
			id = p[id]
			if id == "" {
				return ""
			}
		}
		return id
	}), nil
}

// Assignment is the outcome of a clustering pass, ready to be persisted:
// Members[k] belong to the community Communities[k].
type Assignment struct {
	Iteration   int
	Communities []string
	Members     [][]string
	Modularity  float64
}

// Run clusters the layer for iteration and names the resulting communities.
func Run(base *Graph, parents []map[string]string, iteration int, resolution float64) (Assignment, error) {
	g, err := Layer(base, parents, iteration)
	if err != nil {
		return Assignment{}, err
	}
	res := Cluster(g, resolution)
	out := Assignment{
		Iteration:  iteration,
		Members:    res.Groups,
		Modularity: res.Modularity,
	}
	for k := range res.Groups {
		out.Communities = append(out.Communities, ID(iteration, k))
	}
	return out, nil
}
