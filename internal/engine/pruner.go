package engine

import (
	"proxygen/internal/logger"
)

// PruneGroups runs the pruning fixed point over already-resolved groups and
// returns the survivors in their original order. Running it on its own
// output is a no-op.
func PruneGroups(groups []Group, proxyNames []string) []Group {
	set := newGroupSet()
	for i := range groups {
		g := groups[i]
		g.Proxies = append([]string(nil), g.Proxies...)
		set.put(&g)
	}
	pruneGroups(set, proxyNames)
	return set.list()
}

// pruneGroups removes dangling references until a full pass deletes no group.
// Removing one group can invalidate another that listed it, so a single pass
// is not enough.
func pruneGroups(active *groupSet, proxyNames []string) {
	for pass := 1; ; pass++ {
		// 1. Valid targets as of the start of this pass
		valid := NewTargetSet(proxyNames, active.list())

		// 2. Filter or condemn each group
		var doomed []string
		for _, name := range active.order {
			g := active.byName[name]

			kept := make([]string, 0, len(g.Proxies))
			condemned := false
			for _, p := range g.Proxies {
				if valid.Has(p) {
					kept = append(kept, p)
					continue
				}
				if g.Removable {
					logger.Log.Warnf("Group '%s' (removable) references missing target '%s'. Removing group.", name, p)
					condemned = true
					break
				}
				logger.Log.Debugf("Group '%s': dropping missing target '%s'", name, p)
			}

			if condemned {
				doomed = append(doomed, name)
				continue
			}

			g.Proxies = kept
			if len(g.Proxies) == 0 {
				logger.Log.Warnf("Group '%s' is empty. Removing group.", name)
				doomed = append(doomed, name)
			}
		}

		// 3. Apply deletions; stop once nothing changed
		removed := 0
		for _, name := range doomed {
			if active.remove(name) {
				removed++
			}
		}
		if removed == 0 {
			return
		}
		logger.Log.Debugf("Pruning pass %d removed %d groups", pass, removed)
	}
}
