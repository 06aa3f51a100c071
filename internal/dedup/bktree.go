package dedup

// bkTree is a metric tree over Hamming distance. Lookups within a distance
// threshold prune entire subtrees via the triangle inequality, so near-match
// queries avoid scanning every stored hash.
type bkTree struct {
	root *bkNode
	size int
}

type bkNode struct {
	hash     Hash
	sourceID string
	itemID   int64
	children map[int]*bkNode
}

// Match is a stored hash within the query threshold.
type Match struct {
	Hash     Hash
	SourceID string
	ItemID   int64
	Distance int
}

func (t *bkTree) insert(hash Hash, sourceID string, itemID int64) {
	t.size++
	if t.root == nil {
		t.root = &bkNode{hash: hash, sourceID: sourceID, itemID: itemID}
		return
	}
	node := t.root
	for {
		d := Distance(node.hash, hash)
		if node.children == nil {
			node.children = make(map[int]*bkNode)
		}
		child, ok := node.children[d]
		if !ok {
			node.children[d] = &bkNode{hash: hash, sourceID: sourceID, itemID: itemID}
			return
		}
		node = child
	}
}

// nearest returns the closest stored hash within threshold, or nil.
func (t *bkTree) nearest(hash Hash, threshold int) *Match {
	if t.root == nil {
		return nil
	}

	var best *Match
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := Distance(node.hash, hash)
		if d <= threshold && (best == nil || d < best.Distance) {
			best = &Match{Hash: node.hash, SourceID: node.sourceID, ItemID: node.itemID, Distance: d}
		}

		limit := threshold
		if best != nil && best.Distance < limit {
			limit = best.Distance
		}
		for childDistance, child := range node.children {
			if childDistance >= d-limit && childDistance <= d+limit {
				stack = append(stack, child)
			}
		}
	}
	return best
}

func (t *bkTree) len() int {
	return t.size
}
