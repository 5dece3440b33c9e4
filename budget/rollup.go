// Package budget rolls element prices up a project's parent/child tree.
//
// A parent element is a placeholder for the parts under it: once it has children,
// its own price no longer counts and the children's prices are used instead.
package budget

import "github.com/cosflow/cosflow-web/internal/utils"

// Item is one priced element. ParentID is nil for top-level elements.
type Item struct {
	ID       int64
	ParentID *int64
	Price    float64
}

// Total is the project cost: every price, minus the price of each element that has at least one child.
// Equivalently, the sum of the leaves, so it holds for any nesting depth.
func Total(items []Item) float64 {
	parents := parentSet(items)

	var total float64
	for _, item := range items {
		if _, isParent := parents[item.ID]; isParent {
			continue
		}
		total += item.Price
	}
	return total
}

// Subtotals returns the rolled-up cost of every element: a leaf costs its own price,
// a parent costs the sum of its children's subtotals. Elements on a cycle contribute
// nothing the second time they are reached.
func Subtotals(items []Item) map[int64]float64 {
	children := make(map[int64][]Item, len(items))
	for _, item := range items {
		if isChild(item) {
			parentID := utils.Value(item.ParentID)
			children[parentID] = append(children[parentID], item)
		}
	}

	subtotals := make(map[int64]float64, len(items))
	onPath := make(map[int64]bool)

	var walk func(item Item) float64
	walk = func(item Item) float64 {
		if v, done := subtotals[item.ID]; done {
			return v
		}
		if onPath[item.ID] {
			return 0
		}
		kids := children[item.ID]
		if len(kids) == 0 {
			subtotals[item.ID] = item.Price
			return item.Price
		}

		onPath[item.ID] = true
		var sum float64
		for _, kid := range kids {
			sum += walk(kid)
		}
		delete(onPath, item.ID)

		subtotals[item.ID] = sum
		return sum
	}

	for _, item := range items {
		walk(item)
	}
	return subtotals
}

// parentSet indexes the ids referenced as a parent by at least one item.
func parentSet(items []Item) map[int64]struct{} {
	parents := make(map[int64]struct{})
	for _, item := range items {
		if isChild(item) {
			parents[utils.Value(item.ParentID)] = struct{}{}
		}
	}
	return parents
}

// isChild counts a self-reference too: such an element is its own parent, so its price
// is excluded like any other parent's.
func isChild(item Item) bool {
	return item.ParentID != nil
}
