package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"
	pumped "github.com/pumped-fn/pumped-go-sub001"
)

// GraphDebugExtension renders the reactive dependency graph whenever a
// resolution fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
type GraphDebugExtension struct {
	pumped.BaseExtension

	resolvedExecutors map[pumped.AnyExecutor]bool
	failedExecutors   map[pumped.AnyExecutor]error
	logger            *slog.Logger
}

// NewGraphDebugExtension creates a new graph debug extension.
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension:     pumped.BaseExtension{ExtName: "graph-debug"},
		resolvedExecutors: make(map[pumped.AnyExecutor]bool),
		failedExecutors:   make(map[pumped.AnyExecutor]error),
		logger:            slog.New(logHandler),
	}
}

// Wrap tracks per-executor resolution outcomes for later rendering.
func (e *GraphDebugExtension) Wrap(op pumped.Operation, next func() (any, error)) (any, error) {
	result, err := next()

	if op.Kind == pumped.OpResolve && op.Executor != nil {
		if err == nil {
			e.resolvedExecutors[op.Executor] = true
		} else {
			e.failedExecutors[op.Executor] = err
		}
	}

	return result, err
}

// OnError logs the dependency graph when resolution fails.
func (e *GraphDebugExtension) OnError(err error, scope *pumped.Scope) {
	execName := executorNameFromErr(err)
	graphOutput := e.formatDependencyGraph(scope, execName, err)

	e.logger.Error("Dependency Resolution Error",
		"executor", execName,
		"error", err.Error(),
		"dependency_graph", graphOutput,
	)
}

func executorNameFromErr(err error) string {
	if pe, ok := err.(*pumped.Error); ok && pe.ExecutorName != "" {
		return pe.ExecutorName
	}
	return "(unknown)"
}

// tryFormatHorizontalTree renders the dependency graph as a horizontal
// tree using treedrawer.
func (e *GraphDebugExtension) tryFormatHorizontalTree(graph map[pumped.AnyExecutor][]pumped.AnyExecutor, failedName string) string {
	parents := make(map[pumped.AnyExecutor][]pumped.AnyExecutor)
	allNodes := make(map[pumped.AnyExecutor]bool)

	for parent, children := range graph {
		allNodes[parent] = true
		for _, child := range children {
			allNodes[child] = true
			parents[child] = append(parents[child], parent)
		}
	}

	var roots []pumped.AnyExecutor
	for node := range allNodes {
		if len(parents[node]) == 0 {
			roots = append(roots, node)
		}
	}

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].DebugName() < roots[j].DebugName()
	})

	if len(roots) == 0 {
		return ""
	}

	var rootNode *tree.Tree
	if len(roots) == 1 {
		rootNode = e.buildTree(roots[0], graph, failedName, make(map[pumped.AnyExecutor]bool))
	} else {
		rootNode = tree.NewTree(tree.NodeString("Dependencies"))
		for _, root := range roots {
			childTree := e.buildTree(root, graph, failedName, make(map[pumped.AnyExecutor]bool))
			if childTree != nil {
				e.addTreeAsChild(rootNode, childTree)
			}
		}
	}

	if rootNode == nil {
		return ""
	}

	return rootNode.String()
}

func (e *GraphDebugExtension) buildTree(executor pumped.AnyExecutor, graph map[pumped.AnyExecutor][]pumped.AnyExecutor, failedName string, visited map[pumped.AnyExecutor]bool) *tree.Tree {
	if visited[executor] {
		return nil
	}
	visited[executor] = true

	label := executor.DebugName()
	if label == failedName {
		label += " ❌"
	} else if e.resolvedExecutors[executor] {
		label += " ✓"
	}

	node := tree.NewTree(tree.NodeString(label))

	if children, ok := graph[executor]; ok {
		sortedChildren := make([]pumped.AnyExecutor, len(children))
		copy(sortedChildren, children)
		sort.Slice(sortedChildren, func(i, j int) bool {
			return sortedChildren[i].DebugName() < sortedChildren[j].DebugName()
		})

		for _, child := range sortedChildren {
			childTree := e.buildTree(child, graph, failedName, visited)
			if childTree != nil {
				e.addTreeAsChild(node, childTree)
			}
		}
	}

	return node
}

func (e *GraphDebugExtension) addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	childVal := child.Val()
	newChild := parent.AddChild(childVal)
	for _, grandchild := range child.Children() {
		e.addTreeAsChild(newChild, grandchild)
	}
}

func (e *GraphDebugExtension) formatDependencyGraph(scope *pumped.Scope, failedName string, failedErr error) string {
	var sb strings.Builder
	graph := scope.ExportDependencyGraph()

	if len(graph) == 0 {
		sb.WriteString("\n(empty - no reactive dependencies tracked)")
		return sb.String()
	}

	horizontalTree := e.tryFormatHorizontalTree(graph, failedName)
	if horizontalTree != "" {
		sb.WriteString("\n")
		sb.WriteString(horizontalTree)
		sb.WriteString("\n")
	}

	sb.WriteString("\nDetailed View:\n")

	type sortEntry struct {
		name     string
		children []pumped.AnyExecutor
	}

	entries := make([]sortEntry, 0, len(graph))
	for parent, children := range graph {
		entries = append(entries, sortEntry{name: parent.DebugName(), children: children})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, entry := range entries {
		children := entry.children
		parentName := entry.name

		if len(children) == 0 {
			sb.WriteString(fmt.Sprintf("  %s (no dependents)\n", parentName))
			continue
		}

		sb.WriteString(fmt.Sprintf("  %s\n", parentName))

		type childEntry struct {
			executor pumped.AnyExecutor
			name     string
		}
		childEntries := make([]childEntry, 0, len(children))
		for _, child := range children {
			childEntries = append(childEntries, childEntry{executor: child, name: child.DebugName()})
		}
		sort.Slice(childEntries, func(i, j int) bool { return childEntries[i].name < childEntries[j].name })

		for i, ce := range childEntries {
			childName := ce.name
			if ce.name == failedName {
				childName += " ❌ FAILED"
			} else if e.resolvedExecutors[ce.executor] {
				childName += " ✓"
			} else if childErr, failed := e.failedExecutors[ce.executor]; failed {
				childName = fmt.Sprintf("%s ❌ (error: %v)", childName, childErr)
			} else {
				childName += " (pending)"
			}

			if i == len(children)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", childName))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", childName))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		sb.WriteString(fmt.Sprintf("  Executor: %s\n", failedName))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))
	}

	return sb.String()
}

// SilentHandler discards all log output. Useful for testing.
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool { return false }
func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler             { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler                  { return h }

// HumanHandler formats logs for human readability, with a dedicated
// layout for dependency-graph error records; every other record is
// printed as its level, message, and one line per attribute.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool { return level >= h.level }

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "Dependency Resolution Error" {
		return h.handleDependencyError(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleDependencyError(record slog.Record) error {
	var executor, errorMsg, dependencyGraph string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "executor":
			executor = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "dependency_graph":
			dependencyGraph = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Dependency Resolution Error"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nFailed Executor: %s\n", executor); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errorMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependency Graph:%s", dependencyGraph); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
