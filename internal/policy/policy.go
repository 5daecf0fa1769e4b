package policy

import "strings"

// Mode selects how the extension policy is evaluated.
type Mode string

const (
	Allowlist Mode = "allowlist"
	Blocklist Mode = "blocklist"
)

// ExtensionPolicy is an immutable configuration snapshot consumed per
// evaluation. Extension tokens are lowercase, without a leading dot.
type ExtensionPolicy struct {
	Mode    Mode
	Allowed map[string]struct{}
	Blocked map[string]struct{}
	// Permissive only applies in blocklist mode. When non-empty, an
	// extension must appear here before the blocklist is consulted. It
	// exists to neutralize upstream stacks that ship a default allowlist
	// stricter than the admin's intended blocklist.
	Permissive map[string]struct{}
}

// Result is the outcome of evaluating a filename against a policy.
// Extension carries the offending extension on rejection so callers can
// render a precise message.
type Result struct {
	OK        bool
	Extension string
}

// ParseList splits a space-separated extension list into a lowercase set.
func ParseList(s string) map[string]struct{} {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return set
}

// Extension returns the substring after the last dot, lowercased.
// Filenames without a dot yield the empty string.
func Extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Evaluate decides whether a filename is acceptable under the policy.
// It is pure and performs no I/O.
func Evaluate(filename string, pol ExtensionPolicy) Result {
	ext := Extension(filename)
	if ext == "" {
		// Nothing to police.
		return Result{OK: true}
	}

	if pol.Mode == Allowlist {
		if len(pol.Allowed) == 0 {
			return Result{OK: true}
		}
		if _, ok := pol.Allowed[ext]; ok {
			return Result{OK: true}
		}
		return Result{OK: false, Extension: ext}
	}

	// Blocklist mode. The permissive layer runs first; the blocklist still
	// overrides it.
	if len(pol.Permissive) > 0 {
		if _, ok := pol.Permissive[ext]; !ok {
			return Result{OK: false, Extension: ext}
		}
	}
	if _, ok := pol.Blocked[ext]; ok {
		return Result{OK: false, Extension: ext}
	}
	return Result{OK: true}
}
