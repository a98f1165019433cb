package env

import (
	"strings"
	"testing"
)

// FuzzMerge checks that Merge never emits malformed pairs and that overrides
// always win over the base.
func FuzzMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=2"), "A", "x")
	f.Add([]byte("=\n==\nFOO"), "FOO", "")
	f.Add([]byte(""), "K=V", "v")

	f.Fuzz(func(t *testing.T, baseB []byte, key, val string) {
		base := strings.Split(string(baseB), "\n")
		if len(base) > 20 {
			base = base[:20]
		}
		out := FromList(base).Merge(Var{key: val})
		for _, kv := range out {
			if strings.HasPrefix(kv, "=") || !strings.Contains(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
		if key != "" && !strings.ContainsRune(key, '=') {
			want := key + "=" + val
			found := false
			for _, kv := range out {
				if kv == want {
					found = true
				}
			}
			if !found {
				t.Fatalf("override %q missing from %v", want, out)
			}
		}
	})
}
