package draft

// MaterialRef is a catalog entry as described by the remote hierarchy
type MaterialRef struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Min         float64 `json:"min,omitempty"`
	Max         float64 `json:"max,omitempty"`
	Recommended float64 `json:"recommended,omitempty"`
}

// HierarchyDef describes a parent (trademark) material and its children
type HierarchyDef struct {
	Parent   MaterialRef   `json:"parent"`
	Children []MaterialRef `json:"children"`
}

// ChildNode is a draft item attached under a parent
type ChildNode struct {
	Material MaterialRef `json:"material"`
	Item     Item        `json:"item"`
}

// ParentNode is a parent material with its attached children and aggregates
type ParentNode struct {
	Material    MaterialRef `json:"material"`
	Children    []ChildNode `json:"children"`
	TotalQty    float64     `json:"total_qty"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Recommended float64     `json:"recommended"`
}

// Tree is the derived review view of a draft
type Tree struct {
	Parents []ParentNode `json:"parents"`
	Loose   []Item       `json:"loose"`
}

// HasChildHierarchy reports whether at least one parent has a child item.
// Bulk actions are only offered when it holds.
func (t Tree) HasChildHierarchy() bool {
	for _, p := range t.Parents {
		if len(p.Children) > 0 {
			return true
		}
	}
	return false
}

// TotalQty sums every quantity in the tree
func (t Tree) TotalQty() float64 {
	var total float64
	for _, p := range t.Parents {
		total += p.TotalQty
	}
	for _, item := range t.Loose {
		total += item.Quantity
	}
	return total
}

// Compose builds the review tree from the flat store content and the remote
// hierarchy definition. It keeps no state, so aggregates always reflect the
// items passed in.
func Compose(items []Item, defs []HierarchyDef) Tree {
	tree := Tree{
		Parents: make([]ParentNode, 0, len(defs)),
		Loose:   []Item{},
	}

	type slot struct {
		parent int
		ref    MaterialRef
	}
	// (parent id, child id) -> slot
	index := make(map[[2]int64]slot)
	for i, def := range defs {
		tree.Parents = append(tree.Parents, ParentNode{
			Material: def.Parent,
			Children: []ChildNode{},
		})
		for _, child := range def.Children {
			index[[2]int64{def.Parent.ID, child.ID}] = slot{parent: i, ref: child}
		}
	}

	for _, item := range items {
		s, ok := index[[2]int64{item.ParentMaterialID, item.MaterialID}]
		if !ok || item.ParentMaterialID == 0 {
			tree.Loose = append(tree.Loose, item)
			continue
		}
		p := &tree.Parents[s.parent]
		p.Children = append(p.Children, ChildNode{Material: s.ref, Item: item})
	}

	for i := range tree.Parents {
		aggregate(&tree.Parents[i])
	}

	return tree
}

func aggregate(p *ParentNode) {
	p.TotalQty, p.Min, p.Max, p.Recommended = 0, 0, 0, 0
	seen := false
	for _, child := range p.Children {
		lo, hi, rec, known := thresholds(child)
		p.TotalQty += child.Item.Quantity
		p.Recommended += rec
		// children without thresholds do not bound the range
		if !known {
			continue
		}
		if !seen || lo < p.Min {
			p.Min = lo
		}
		if !seen || hi > p.Max {
			p.Max = hi
		}
		seen = true
	}
}

// thresholds prefers the catalog values and falls back to the item snapshot
func thresholds(child ChildNode) (lo, hi, rec float64, known bool) {
	ref := child.Material
	if ref.Min != 0 || ref.Max != 0 || ref.Recommended != 0 {
		return ref.Min, ref.Max, ref.Recommended, true
	}
	item := child.Item
	known = item.Min != 0 || item.Max != 0 || item.Recommended != 0
	return item.Min, item.Max, item.Recommended, known
}

// Line is one flattened entry of a submission payload
type Line struct {
	MaterialID       int64   `json:"material_id"`
	ParentMaterialID int64   `json:"parent_material_id,omitempty"`
	StockID          int64   `json:"stock_id,omitempty"`
	Quantity         float64 `json:"quantity"`
	ReasonID         int64   `json:"reason_id,omitempty"`
	OtherReasonText  string  `json:"other_reason_text,omitempty"`
	Batch            *Batch  `json:"batch,omitempty"`
	Payload          Payload `json:"payload"`
}

// Submission is the flattened draft sent to the remote submission API
type Submission struct {
	Context Context `json:"context"`
	Lines   []Line  `json:"lines"`
}

// Flatten turns the tree back into submission lines, parents first in
// definition order, then loose items.
func (t Tree) Flatten(ctx Context) Submission {
	sub := Submission{Context: ctx, Lines: []Line{}}
	for _, p := range t.Parents {
		for _, child := range p.Children {
			sub.Lines = append(sub.Lines, lineOf(child.Item))
		}
	}
	for _, item := range t.Loose {
		sub.Lines = append(sub.Lines, lineOf(item))
	}
	return sub
}

func lineOf(item Item) Line {
	return Line{
		MaterialID:       item.MaterialID,
		ParentMaterialID: item.ParentMaterialID,
		StockID:          item.StockID,
		Quantity:         item.Quantity,
		ReasonID:         item.ReasonID,
		OtherReasonText:  item.OtherReasonText,
		Batch:            item.Batch,
		Payload:          item.Payload,
	}
}
