package extensions

import (
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	pumped "github.com/pumped-fn/pumped-go-sub001"
)

// JournalStatus is a node's terminal or in-flight state.
type JournalStatus string

const (
	JournalRunning JournalStatus = "running"
	JournalSuccess JournalStatus = "success"
	JournalFailed  JournalStatus = "failed"
)

// JournalNode is one recorded flow execution, subflow, or journaled
// step. ParentID is the id of the enclosing flow's node (0 for a root),
// found by the enclosing flow's name — sufficient to reconstruct a
// root/subflow tree without re-deriving execution identity the core
// deliberately doesn't expose to extensions.
type JournalNode struct {
	ID       uint64        `yaml:"id"`
	ParentID uint64        `yaml:"parent_id,omitempty"`
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"`
	Depth    int           `yaml:"depth"`
	Parallel bool          `yaml:"parallel"`
	Status   JournalStatus `yaml:"status"`
	Started  time.Time     `yaml:"started"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

// JournalExtension records a bounded tree of flow executions (root
// executes, subflow execs, and journaled run steps) for offline
// inspection. It observes the extension chain; it never decides a
// replay policy for Run — that remains the caller's responsibility
// (the journaled step's function always actually runs).
type JournalExtension struct {
	pumped.BaseExtension

	mu       sync.Mutex
	limit    int
	seq      uint64
	nodes    map[uint64]*JournalNode
	byParent map[uint64][]uint64
	roots    []uint64
	active   map[string]uint64 // flow name -> most recent in-flight node id, for parent lookup
}

// NewJournalExtension creates a journal bounded by node count: whenever
// adding a node takes the count above limit, the oldest root (and its
// subtree) is evicted.
func NewJournalExtension(limit int) *JournalExtension {
	return &JournalExtension{
		BaseExtension: pumped.BaseExtension{ExtName: "journal"},
		limit:         limit,
		nodes:         make(map[uint64]*JournalNode),
		byParent:      make(map[uint64][]uint64),
		active:        make(map[string]uint64),
	}
}

func (j *JournalExtension) Wrap(op pumped.Operation, next func() (any, error)) (any, error) {
	switch op.Kind {
	case pumped.OpExecute, pumped.OpSubflow, pumped.OpJournal:
	default:
		return next()
	}

	name := op.FlowName
	if op.Kind == pumped.OpJournal {
		name = op.JournalKey
	}

	var parentID uint64
	if op.Kind == pumped.OpSubflow {
		j.mu.Lock()
		parentID = j.active[op.ParentFlowName]
		j.mu.Unlock()
	}

	node := &JournalNode{
		Name:     name,
		Kind:     op.Kind.String(),
		Depth:    op.Depth,
		Parallel: op.Parallel,
		Status:   JournalRunning,
		Started:  time.Now(),
	}
	j.addNode(node, parentID)

	j.mu.Lock()
	prevActive, hadPrev := j.active[name]
	j.active[name] = node.ID
	j.mu.Unlock()

	result, err := next()

	j.mu.Lock()
	node.Duration = time.Since(node.Started)
	if err != nil {
		node.Status = JournalFailed
		node.Error = err.Error()
	} else {
		node.Status = JournalSuccess
	}
	if hadPrev {
		j.active[name] = prevActive
	} else {
		delete(j.active, name)
	}
	j.mu.Unlock()

	return result, err
}

func (j *JournalExtension) addNode(node *JournalNode, parentID uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	node.ID = j.seq
	node.ParentID = parentID
	j.nodes[node.ID] = node

	if parentID == 0 {
		j.roots = append(j.roots, node.ID)
	} else {
		j.byParent[parentID] = append(j.byParent[parentID], node.ID)
	}

	if len(j.nodes) > j.limit {
		j.evictOldestLocked()
	}
}

func (j *JournalExtension) evictOldestLocked() {
	if len(j.roots) == 0 {
		return
	}
	oldest := j.roots[0]
	j.roots = j.roots[1:]
	j.removeSubtreeLocked(oldest)
}

func (j *JournalExtension) removeSubtreeLocked(id uint64) {
	delete(j.nodes, id)
	children := j.byParent[id]
	delete(j.byParent, id)
	for _, child := range children {
		j.removeSubtreeLocked(child)
	}
}

// Roots returns every currently retained root node.
func (j *JournalExtension) Roots() []*JournalNode {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*JournalNode, 0, len(j.roots))
	for _, id := range j.roots {
		if n, ok := j.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Children returns id's direct children.
func (j *JournalExtension) Children(id uint64) []*JournalNode {
	j.mu.Lock()
	defer j.mu.Unlock()
	childIDs := j.byParent[id]
	out := make([]*JournalNode, 0, len(childIDs))
	for _, cid := range childIDs {
		if n, ok := j.nodes[cid]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Filter returns every retained node matching predicate.
func (j *JournalExtension) Filter(predicate func(*JournalNode) bool) []*JournalNode {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*JournalNode
	for _, n := range j.nodes {
		if predicate(n) {
			out = append(out, n)
		}
	}
	return out
}

// Snapshot serializes every retained node to YAML, for dumping to a
// file or log sink for offline inspection.
func (j *JournalExtension) Snapshot() ([]byte, error) {
	j.mu.Lock()
	nodes := make([]*JournalNode, 0, len(j.nodes))
	for _, n := range j.nodes {
		nodes = append(nodes, n)
	}
	j.mu.Unlock()
	return yaml.Marshal(nodes)
}
