package model

// Node is one merged, laid-out flame graph node.
//
// Depth is 0 at the roots of the active view. Positive depths descend
// towards callees, negative depths ascend towards callers.
//
// CumulativeValue is SelfValue plus the children on one side only. In the
// inverted views the outermost caller holds the weight as SelfValue, so
// SelfValue there is not time spent in the frame itself.
type Node struct {
	ID                    int               `json:"id"`
	ParentID              *int              `json:"parentId,omitempty"`
	Hash                  uint64            `json:"hash"`
	Depth                 int               `json:"depth"`
	Name                  string            `json:"name"`
	SelfValue             float64           `json:"selfValue"`
	CumulativeValue       float64           `json:"cumulativeValue"`
	ParentCumulativeValue *float64          `json:"parentCumulativeValue,omitempty"`
	XStart                float64           `json:"xStart"`
	XEnd                  float64           `json:"xEnd"`
	Properties            map[string]string `json:"properties,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool { return n.ParentID == nil }

// Width returns the horizontal extent of the node.
func (n Node) Width() float64 { return n.XEnd - n.XStart }

// QueryData is the result bundle handed to renderers.
type QueryData struct {
	Metric                    string  `json:"metric"`
	Unit                      string  `json:"unit"`
	View                      View    `json:"view"`
	Nodes                     []Node  `json:"nodes"`
	AllRootsCumulativeValue   float64 `json:"allRootsCumulativeValue"`
	UnfilteredCumulativeValue float64 `json:"unfilteredCumulativeValue"`
	MinDepth                  int     `json:"minDepth"`
	MaxDepth                  int     `json:"maxDepth"`
}

// NodesAtDepth returns the nodes at depth d in output order.
func (q *QueryData) NodesAtDepth(d int) []Node {
	var out []Node
	for _, n := range q.Nodes {
		if n.Depth == d {
			out = append(out, n)
		}
	}
	return out
}

// Empty reports whether nothing survived filtering.
func (q *QueryData) Empty() bool {
	return q == nil || len(q.Nodes) == 0
}
