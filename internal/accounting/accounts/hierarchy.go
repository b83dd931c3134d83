package accounts

import (
	"fmt"
	"sort"
)

// Node is an account with its active children.
type Node struct {
	Account
	Children []*Node `json:"children"`
}

// TypeGroup holds the root accounts of one category.
type TypeGroup struct {
	Type  AccountType `json:"type"`
	Roots []*Node     `json:"roots"`
}

// BuildHierarchy arranges active accounts into a forest grouped by the type
// of each tree's root. Accounts whose parent is missing or retired become roots.
func BuildHierarchy(accounts []Account) []TypeGroup {
	nodes := make(map[int64]*Node, len(accounts))
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		if !a.Active() {
			continue
		}
		nodes[a.ID] = &Node{Account: a}
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parentOf := func(n *Node) *Node {
		if n.ParentID == nil || *n.ParentID == n.ID {
			return nil
		}
		return nodes[*n.ParentID]
	}

	isRoot := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if parentOf(nodes[id]) == nil {
			isRoot[id] = true
		}
	}
	// Promote one member of any parent cycle so every node is reachable.
	for _, id := range ids {
		if !reachesRoot(nodes[id], parentOf, isRoot) {
			isRoot[id] = true
		}
	}

	for _, id := range ids {
		n := nodes[id]
		if isRoot[id] {
			continue
		}
		p := parentOf(n)
		p.Children = append(p.Children, n)
	}

	groups := make(map[AccountType][]*Node)
	for _, id := range ids {
		if isRoot[id] {
			n := nodes[id]
			groups[n.Type] = append(groups[n.Type], n)
		}
	}
	out := make([]TypeGroup, 0, len(groups))
	for _, t := range AccountTypes {
		roots := groups[t]
		if len(roots) == 0 {
			continue
		}
		sortNodes(roots)
		out = append(out, TypeGroup{Type: t, Roots: roots})
	}
	return out
}

func reachesRoot(n *Node, parentOf func(*Node) *Node, isRoot map[int64]bool) bool {
	seen := map[int64]bool{}
	for cur := n; cur != nil; cur = parentOf(cur) {
		if isRoot[cur.ID] {
			return true
		}
		if seen[cur.ID] {
			return false
		}
		seen[cur.ID] = true
	}
	return true
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name == nodes[j].Name {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// validateParent checks that parentID may become the parent of id. id is zero
// for an account that does not exist yet.
func validateParent(chart map[int64]Account, id, parentID int64) error {
	parent, ok := chart[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %d does not exist", ErrInvalidParent, parentID)
	}
	if !parent.Active() {
		return fmt.Errorf("%w: parent %d is retired", ErrInvalidParent, parentID)
	}
	if id != 0 && parentID == id {
		return fmt.Errorf("%w: account cannot be its own parent", ErrInvalidParent)
	}
	visited := make(map[int64]bool)
	for cur := parentID; ; {
		if id != 0 && cur == id {
			return fmt.Errorf("%w: parent %d is a descendant of account %d", ErrInvalidParent, parentID, id)
		}
		if visited[cur] {
			return fmt.Errorf("%w: parent chain of %d does not terminate", ErrInvalidParent, parentID)
		}
		visited[cur] = true
		a, ok := chart[cur]
		if !ok || a.ParentID == nil {
			return nil
		}
		cur = *a.ParentID
	}
}
