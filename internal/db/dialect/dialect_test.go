package dialect

import "testing"

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE b = ? AND c IN (?, ?)"

	if got := Postgres.Rebind(query); got != "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)" {
		t.Fatalf("unexpected postgres query: %s", got)
	}
	if got := SQLite.Rebind(query); got != query {
		t.Fatalf("sqlite query should be unchanged: %s", got)
	}
}

func TestPlaceholders(t *testing.T) {
	cases := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range cases {
		if got := Placeholders(n); got != want {
			t.Fatalf("Placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"postgres", "PGX", " postgresql "} {
		d, err := ByName(name)
		if err != nil || d.Name != "postgres" {
			t.Fatalf("ByName(%q) = %+v, %v", name, d, err)
		}
	}
	if d, err := ByName("sqlite3"); err != nil || d.Name != "sqlite" {
		t.Fatalf("ByName(sqlite3) = %+v, %v", d, err)
	}
	if _, err := ByName("mysql"); err == nil {
		t.Fatalf("expected error for unsupported dialect")
	}
}
