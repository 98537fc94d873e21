package edges

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// resolver holds the read-only state shared by resolution workers.
type resolver struct {
	table *symtab.Table
	caps  *CapabilityIndex
}

// batch is the private output of resolving one symbol's call sites.
type batch struct {
	edges       []callgraph.Edge
	diagnostics []Diagnostic
	unresolved  int
	ambiguous   int
}

// resolveSymbol resolves every call site of the symbol at idx in recorded order.
func (r *resolver) resolveSymbol(idx int) batch {
	src := r.table.At(idx)
	var out batch
	if len(src.Calls) == 0 {
		return out
	}

	var seen seenEdges
	add := func(to int, kind callgraph.Resolution, site symtab.Location) {
		dst := r.table.At(to).ID
		if !seen.insert(src.ID, dst, kind) {
			return
		}
		out.edges = append(out.edges, callgraph.Edge{From: src.ID, To: dst, Kind: kind, Site: site})
	}

	for _, site := range src.Calls {
		switch site.Ref {
		case symtab.RefDispatch:
			targets, exact := r.dispatch(src, site)
			switch {
			case len(targets) == 0:
				out.unresolved++
				out.diagnostics = append(out.diagnostics, unresolved(site, "no method with this name on any candidate receiver"))
			case exact || len(targets) == 1:
				add(targets[0], callgraph.ResolutionDispatchExact, site.Location)
			default:
				for _, t := range targets {
					add(t, callgraph.ResolutionDispatchApproximate, site.Location)
				}
			}

		case symtab.RefDirect, symtab.RefValue, symtab.RefType, symtab.RefMacro:
			targets, ambiguous := r.direct(src, site.Name)
			if len(targets) == 0 {
				// An unknown value is usually a local binding and an unknown
				// type usually comes from a dependency. Neither is counted.
				if site.Ref == symtab.RefValue || site.Ref == symtab.RefType {
					continue
				}
				out.unresolved++
				out.diagnostics = append(out.diagnostics, unresolved(site, "no symbol matches this name"))
				continue
			}
			if ambiguous {
				out.ambiguous++
				out.diagnostics = append(out.diagnostics, r.ambiguousDiagnostic(site, targets))
				for _, t := range targets {
					add(t, callgraph.ResolutionDispatchApproximate, site.Location)
				}
				continue
			}
			add(targets[0], kindFor(site.Ref), site.Location)

		default:
			out.unresolved++
			out.diagnostics = append(out.diagnostics, unresolved(site, "unknown reference kind"))
		}
	}
	return out
}

// direct resolves a name: exact identity, qualified suffix, then short name
// narrowed by scope and file. ambiguous is set when several candidates remain.
func (r *resolver) direct(src *symtab.Symbol, name string) (targets []int, ambiguous bool) {
	if i, ok := r.table.Index(name); ok {
		return []int{i}, false
	}
	if rest, scope, ok := anchorScope(name, src.Scope); ok {
		return r.anchored(src, rest, scope)
	}
	n := normalizeName(name, src.Owner)
	if n == "" {
		return nil, false
	}
	if i, ok := r.table.Index(n); ok {
		return []int{i}, false
	}

	var candidates []int
	if strings.Contains(n, symtab.PathSep) {
		candidates = r.table.ByPath(n)
	} else {
		candidates = r.free(r.table.ByName(n))
	}
	candidates = r.narrow(src, candidates)
	return candidates, len(candidates) > 1
}

// anchored resolves a path written relative to the crate root or a parent
// module. Only symbols whose full path is scope::rest match; the caller's own
// scope is not preferred.
func (r *resolver) anchored(src *symtab.Symbol, rest, scope string) (targets []int, ambiguous bool) {
	n := normalizeName(rest, src.Owner)
	if n == "" {
		return nil, false
	}
	want := joinPath(scope, n)
	candidates := r.filter(r.table.ByName(lastSegment(n)), func(s *symtab.Symbol) bool {
		return joinPath(s.Scope, s.Owner, s.Name) == want
	})
	if len(candidates) > 1 {
		if same := r.filter(candidates, func(s *symtab.Symbol) bool { return s.Location.File == src.Location.File }); len(same) > 0 {
			candidates = same
		}
	}
	return candidates, len(candidates) > 1
}

// dispatch resolves a method call. exact is set when the receiver type
// determined the target.
func (r *resolver) dispatch(src *symtab.Symbol, site symtab.CallSite) (targets []int, exact bool) {
	method := lastSegment(normalizeName(site.Name, src.Owner))
	if method == "" {
		return nil, false
	}

	capability := site.Capability
	if site.Receiver != "" {
		recv := baseTypeName(site.Receiver)
		if recv == "Self" || recv == "self" {
			recv = src.Owner
		}
		if m := r.table.Methods(recv, method); len(m) == 1 {
			return m, true
		}
		var defaults []int
		for _, c := range r.caps.Capabilities(recv) {
			defaults = append(defaults, r.table.Methods(c, method)...)
		}
		if len(defaults) == 1 {
			return defaults, true
		}
		// A receiver typed as an interface or trait object.
		if capability == "" && len(r.caps.Implementers(recv)) > 0 {
			capability = recv
		}
	}

	if capability != "" {
		return r.caps.Resolve(r.table, capability, method), false
	}
	return r.table.MethodsNamed(method), false
}

// free keeps candidates that are not methods; a bare name never denotes one.
func (r *resolver) free(candidates []int) []int {
	var out []int
	for _, i := range candidates {
		if r.table.At(i).Owner == "" {
			out = append(out, i)
		}
	}
	return out
}

// narrow prefers candidates in the caller's scope, then in its file.
func (r *resolver) narrow(src *symtab.Symbol, candidates []int) []int {
	if len(candidates) < 2 {
		return candidates
	}
	if same := r.filter(candidates, func(s *symtab.Symbol) bool { return s.Scope == src.Scope }); len(same) > 0 {
		candidates = same
	}
	if len(candidates) < 2 {
		return candidates
	}
	if same := r.filter(candidates, func(s *symtab.Symbol) bool { return s.Location.File == src.Location.File }); len(same) > 0 {
		candidates = same
	}
	return candidates
}

func (r *resolver) filter(candidates []int, keep func(*symtab.Symbol) bool) []int {
	var out []int
	for _, i := range candidates {
		if keep(r.table.At(i)) {
			out = append(out, i)
		}
	}
	return out
}

func (r *resolver) ambiguousDiagnostic(site symtab.CallSite, targets []int) Diagnostic {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = r.table.At(t).ID
	}
	return Diagnostic{
		Kind:       DiagnosticAmbiguous,
		Source:     site.Source,
		Ref:        site.Ref,
		Name:       site.Name,
		Location:   site.Location,
		Message:    "several equally scoped candidates; linked to all of them",
		Candidates: ids,
	}
}

func unresolved(site symtab.CallSite, reason string) Diagnostic {
	return Diagnostic{
		Kind:     DiagnosticUnresolved,
		Source:   site.Source,
		Ref:      site.Ref,
		Name:     site.Name,
		Location: site.Location,
		Message:  reason,
	}
}

func kindFor(ref symtab.RefKind) callgraph.Resolution {
	switch ref {
	case symtab.RefValue:
		return callgraph.ResolutionClosureCapture
	case symtab.RefMacro:
		return callgraph.ResolutionMacroSynthesized
	default:
		return callgraph.ResolutionDirect
	}
}

type edgeTuple struct {
	from, to string
	kind     callgraph.Resolution
}

// seenEdges remembers the edges already emitted for one source. Tuples are
// bucketed by hash and compared in full, so a hash collision never drops an
// edge.
type seenEdges struct {
	buckets map[uint64][]edgeTuple
	hash    func(from, to string, kind callgraph.Resolution) uint64
}

// insert adds the edge and reports whether it was new.
func (s *seenEdges) insert(from, to string, kind callgraph.Resolution) bool {
	if s.buckets == nil {
		s.buckets = make(map[uint64][]edgeTuple)
	}
	hash := s.hash
	if hash == nil {
		hash = edgeKey
	}
	key := hash(from, to, kind)
	t := edgeTuple{from: from, to: to, kind: kind}
	for _, have := range s.buckets[key] {
		if have == t {
			return false
		}
	}
	s.buckets[key] = append(s.buckets[key], t)
	return true
}

func edgeKey(from, to string, kind callgraph.Resolution) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(from)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(to)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(kind))
	return d.Sum64()
}

// anchorScope consumes leading crate::, self:: and super:: segments and
// returns the module path they denote from scope. ok is false when name has
// none of them.
func anchorScope(name, scope string) (rest, abs string, ok bool) {
	rest = strings.TrimSpace(name)
	var segs []string
	if scope != "" {
		segs = strings.Split(scope, symtab.PathSep)
	}
	for {
		switch {
		case strings.HasPrefix(rest, "crate::"):
			rest, segs = rest[len("crate::"):], nil
		case strings.HasPrefix(rest, "self::"):
			rest = rest[len("self::"):]
		case strings.HasPrefix(rest, "super::"):
			rest = rest[len("super::"):]
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			return rest, strings.Join(segs, symtab.PathSep), ok
		}
		ok = true
	}
}

func joinPath(segments ...string) string {
	var parts []string
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, symtab.PathSep)
}

// normalizeName strips generic arguments and relative path prefixes and
// rewrites Self:: to the enclosing owner.
func normalizeName(name, owner string) string {
	n := stripGenerics(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, ".", symtab.PathSep)
	for {
		trimmed := false
		for _, prefix := range []string{"crate::", "self::", "super::"} {
			if strings.HasPrefix(n, prefix) {
				n = n[len(prefix):]
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}
	if rest, ok := strings.CutPrefix(n, "Self::"); ok {
		n = rest
		if owner != "" {
			n = owner + symtab.PathSep + rest
		}
	}
	return strings.Trim(n, ":")
}

// stripGenerics removes bracketed generic arguments: "Vec::<T>::new" ->
// "Vec::new", "Map[K, V]" -> "Map".
func stripGenerics(name string) string {
	if !strings.ContainsAny(name, "<[") {
		return name
	}
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch r {
		case '<', '[':
			depth++
		case '>', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	out := b.String()
	for strings.Contains(out, "::::") {
		out = strings.ReplaceAll(out, "::::", symtab.PathSep)
	}
	return strings.Trim(out, ": ")
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, symtab.PathSep); i >= 0 {
		return name[i+len(symtab.PathSep):]
	}
	return name
}
