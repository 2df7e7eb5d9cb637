package migrations

import (
	"io/fs"
	"strconv"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreVersioned(t *testing.T) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no migrations embedded")
	}

	seen := map[int64]string{}
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			t.Errorf("%s: missing version prefix", name)
			continue
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			t.Errorf("%s: version %q is not numeric", name, prefix)
			continue
		}
		if prev, dup := seen[version]; dup {
			t.Errorf("%s: version %d already used by %s", name, version, prev)
		}
		seen[version] = name

		body, err := fs.ReadFile(files, name)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		if !strings.HasPrefix(string(body), "-- +goose Up\n") {
			t.Errorf("%s: must start with a goose Up annotation", name)
		}
	}
}
