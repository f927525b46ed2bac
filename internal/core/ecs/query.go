package ecs

// Each2 visits entities that have both an A and a B, in ascending id order.
// It walks the smaller store and probes the larger one.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		for _, id := range sa.IDs() {
			a, okA := sa.data[id]
			b, okB := sb.data[id]
			if okA && okB {
				fn(id, a, b)
			}
		}
		return
	}
	for _, id := range sb.IDs() {
		a, okA := sa.data[id]
		b, okB := sb.data[id]
		if okA && okB {
			fn(id, a, b)
		}
	}
}
