package postgres

import (
	"strings"
	"testing"
)

func TestSchema_CoversEveryTable(t *testing.T) {
	for _, table := range []string{"retainers", "buyers", "listings", "sales", "recency"} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema does not create %s", table)
		}
	}
	if n := strings.Count(Schema, "CREATE INDEX IF NOT EXISTS"); n != 3 {
		t.Errorf("schema creates %d indexes, want 3", n)
	}
}
