package threatlens

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchedSignatures = `
inspection:
  - category: XSS
    signatures:
      - name: marker
        pattern: "(?i)firstmarker"
`

func TestWatchCatalogReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	if err := os.WriteFile(path, []byte(watchedSignatures), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	provider := NewCatalogProvider(catalog)

	stop, err := WatchCatalog(path, provider)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	updated := `
inspection:
  - category: SQL_INJECTION
    signatures:
      - name: marker
        pattern: "(?i)secondmarker"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cat, ok := provider.Current().Classify("secondmarker"); ok && cat == CategorySQLInjection {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("catalog was not reloaded after file change")
}

func TestWatchCatalogKeepsPreviousOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	if err := os.WriteFile(path, []byte(watchedSignatures), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	provider := NewCatalogProvider(catalog)

	stop, err := WatchCatalog(path, provider)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("inspection: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Give the watcher a moment to process the bad write, then verify
	// the original catalog still classifies.
	time.Sleep(500 * time.Millisecond)
	if cat, ok := provider.Current().Classify("firstmarker"); !ok || cat != CategoryXSS {
		t.Fatalf("previous catalog lost after failed reload: %q/%v", cat, ok)
	}
}

func TestWatchCatalogMissingDir(t *testing.T) {
	provider := NewCatalogProvider(DefaultCatalog())
	if _, err := WatchCatalog("/no/such/dir/signatures.yaml", provider); err == nil {
		t.Fatal("missing directory accepted")
	}
}
