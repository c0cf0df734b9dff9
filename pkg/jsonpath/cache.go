package jsonpath

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

var compileGroup singleflight.Group

// CompileShared is Compile with concurrent-identical-call collapsing: if
// two goroutines call CompileShared with the same (raw, vars) pair while a
// compile is already in flight, the second waits for and reuses the first's
// result rather than re-running the parser. Store.Dispatch calls this
// instead of Compile directly, since a busy peer issuing the same path
// shape repeatedly (e.g. a hot counter) is the common case.
func CompileShared(raw string, vars map[string]any) (CompiledPath, error) {
	key := cacheKey(raw, vars)
	v, err, _ := compileGroup.Do(key, func() (any, error) {
		return Compile(raw, vars)
	})
	if err != nil {
		return CompiledPath{}, err
	}
	return v.(CompiledPath), nil
}

func cacheKey(raw string, vars map[string]any) string {
	if len(vars) == 0 {
		return raw
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString(raw)
	for _, name := range names {
		fmt.Fprintf(&sb, "\x00%s=%v", name, vars[name])
	}
	return sb.String()
}
