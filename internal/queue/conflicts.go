package queue

// DisjointFiles reports whether the file sets declared by a group of tasks
// overlap, and the first colliding path if so. A batch may only run tasks
// in parallel when every task's declared target files are disjoint from
// every other task's; a task touching a file another in-flight task also
// touches must run sequentially instead. Adapted from the teacher's
// package-scope path checking, here applied to the declared Task.Files
// field known upfront rather than to a git-status diff discovered after
// the fact.
func DisjointFiles(tasks []Task) (ok bool, path string, a string, b string) {
	owner := make(map[string]string, len(tasks)*2)
	for _, t := range tasks {
		for _, f := range t.Files {
			if existing, taken := owner[f]; taken && existing != t.ID {
				return false, f, existing, t.ID
			}
			owner[f] = t.ID
		}
	}
	return true, "", "", ""
}

// ParallelizableBatch splits tasks into a disjoint-file subset safe to run
// concurrently and a remainder that must wait, by greedily admitting tasks
// in order as long as they don't collide with an already-admitted task's
// files.
func ParallelizableBatch(tasks []Task) (parallel []Task, sequential []Task) {
	claimed := make(map[string]bool)
	for _, t := range tasks {
		conflict := false
		for _, f := range t.Files {
			if claimed[f] {
				conflict = true
				break
			}
		}
		if conflict {
			sequential = append(sequential, t)
			continue
		}
		for _, f := range t.Files {
			claimed[f] = true
		}
		parallel = append(parallel, t)
	}
	return parallel, sequential
}
