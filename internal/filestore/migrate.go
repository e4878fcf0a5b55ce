package filestore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"ytarchive/storage"
)

// Migration upgrades a record from schema version From. Apply must not
// mutate its argument and must return a record with a higher version.
type Migration struct {
	From  int
	Name  string
	Apply func(storage.Record) (storage.Record, error)
}

// MigrationChain upgrades records to Target by applying Steps in a loop.
type MigrationChain struct {
	Target int
	Steps  []Migration
}

// Run applies migrations until rec reaches Target. A version with no
// registered step, including one above Target, is ErrUnknownSchemaVersion.
func (c *MigrationChain) Run(rec storage.Record) (storage.Record, error) {
	cur := rec
	for v := cur.SchemaVersion(); v != c.Target; v = cur.SchemaVersion() {
		step, ok := c.step(v)
		if !ok {
			return nil, fmt.Errorf("%w: %d (target %d)", storage.ErrUnknownSchemaVersion, v, c.Target)
		}
		next, err := step.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", step.Name, err)
		}
		if next.SchemaVersion() <= v {
			return nil, fmt.Errorf("migration %s: version did not advance from %d", step.Name, v)
		}
		cur = next
	}
	return cur, nil
}

// NeedsUpgrade reports whether rec is below Target.
func (c *MigrationChain) NeedsUpgrade(rec storage.Record) bool {
	return c != nil && rec.SchemaVersion() < c.Target
}

func (c *MigrationChain) step(v int) (Migration, bool) {
	for _, m := range c.Steps {
		if m.From == v {
			return m, true
		}
	}
	return Migration{}, false
}

// SetVersion is a migration helper that stamps the target version on a
// copy of rec without changing anything else.
func SetVersion(target int) func(storage.Record) (storage.Record, error) {
	return func(rec storage.Record) (storage.Record, error) {
		out := rec.Clone()
		out["schema_version"] = json.Number(strconv.Itoa(target))
		return out, nil
	}
}
