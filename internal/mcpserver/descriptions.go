package mcpserver

// Tool descriptions with interpretation guidance for LLMs.
// Each description explains what the tool does, when to use it,
// how to interpret results, and key thresholds.

func describeReachability() string {
	return `Finds code that no entry point can reach in a Rust or Go tree (plus any *.facts.json / *.facts.yaml files), by building a call graph and traversing it from the program roots.

USE WHEN:
- Cleaning up code before major refactoring
- Finding orphaned code after feature removal
- Auditing the public API of a library for unused exports
- Checking whether a chain of helpers became dead after a change

INTERPRETING RESULTS:
- groups: each group is a chain of dead code. Its root is an unreachable-root (nothing live calls it); the rest are transitively-dead and disappear when the root is removed
- depth shows how far a finding is from its group root; a cycle lists mutually recursive roots
- private: safe removal candidates. public: removal changes an external contract, verify consumers first
- provisional: the symbol would only be live through dynamic dispatch without a known receiver. Every candidate implementation is treated as reachable, so provisional rows deserve manual review
- confidence > 0.8: high confidence; 0.5-0.8: verify usage manually; < 0.5: likely dynamic usage (constructors, handlers, trait implementations)
- live_provisional lists symbols that are live only through approximate dispatch edges

METRICS RETURNED:
- groups, private and public findings with id, file, line, classification, group_root, depth, confidence
- summary: analyzed, reachable and dead counts, dead percentage, roots, edges by kind, unresolved and ambiguous references
- unused_test_helpers when include_tests is set
- shown and filter when type, min_confidence, sort or limit narrowed the findings; the summary always covers the whole tree

FILTERING:
- type functions or types keeps one kind of symbol
- min_confidence drops findings below the threshold
- sort confidence lists the most certain findings first; limit caps the list after sorting

Modes: binary (default) roots main and init functions; library also roots every public symbol and trait implementation method.`
}

func describeExplain() string {
	return `Explains why one symbol is live or dead: its root status, a shortest call path from a root, its resolved callers and callees, and the references from its body that could not be resolved.

USE WHEN:
- A finding from analyze_reachability looks wrong and you need to see who calls the symbol
- Deciding whether a provisional symbol is really used
- Tracing how an entry point reaches a piece of code

INTERPRETING RESULTS:
- status root: the symbol is an entry point (root_reason says why)
- status live: path lists the call chain from a root to the symbol
- status provisional: every path crosses an approximate dispatch edge
- status dead: finding carries the group root and confidence
- status test-only: the symbol lives in test code and tests were excluded
- callers and callees show the edge kind: direct, dispatch-exact, dispatch-approximate, closure-capture or macro-synthesized
- unresolved lists references the analysis could not link; a dead symbol with many unresolved callers in other code may be a false positive

METRICS RETURNED:
- id, name, kind, visibility, location, status, root_reason, path, callers, callees, finding, unresolved

The symbol may be a full id (src/main.rs::helper), a qualified path (Circle::new) or a unique short name (helper).`
}
