package module

import (
	"sort"
	"strings"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Resolve computes a startup order over the given manifests with
// Kahn's algorithm: a module appears after everything it depends on.
// Ties break lexicographically by id so the order is deterministic.
// Missing dependencies, self-loops, and cycles each produce a distinct
// dependency-kind error; cycle errors name the residual set.
func Resolve(manifests []types.Manifest) ([]string, error) {
	present := make(map[string]bool, len(manifests))
	for _, m := range manifests {
		present[m.ID] = true
	}

	// indegree counts unresolved dependencies; dependents[b] lists the
	// modules waiting on b.
	indegree := make(map[string]int, len(manifests))
	dependents := make(map[string][]string)
	for _, m := range manifests {
		indegree[m.ID] += 0
		for _, dep := range m.Dependencies {
			if dep == m.ID {
				return nil, oerrors.Dependencyf("module %s depends on itself", m.ID)
			}
			if !present[dep] {
				return nil, oerrors.Dependencyf("module %s depends on missing module %s", m.ID, dep)
			}
			indegree[m.ID]++
			dependents[dep] = append(dependents[dep], m.ID)
		}
	}

	ready := make([]string, 0, len(manifests))
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(manifests))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := false
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(manifests) {
		residual := make([]string, 0)
		for id, d := range indegree {
			if d > 0 {
				residual = append(residual, id)
			}
		}
		sort.Strings(residual)
		return nil, oerrors.Dependencyf("dependency cycle among modules: %s", strings.Join(residual, ", "))
	}
	return order, nil
}
