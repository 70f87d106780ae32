package tablestore

// Metadata tables live next to the class tables in the same file. They hold
// only what SQLite's own catalog cannot express: the store-wide version, the
// primary key designation, and link targets.

// CreateMetadataTableSQL creates the single-row version table. A missing row
// means the store was never initialized.
const CreateMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS realm_metadata (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
)`

// CreatePrimaryKeysTableSQL creates the primary key designation table.
const CreatePrimaryKeysTableSQL = `
CREATE TABLE IF NOT EXISTS realm_primary_keys (
    class_name TEXT PRIMARY KEY,
    field_name TEXT NOT NULL
)`

// CreateLinksTableSQL records the target class of Object and List columns.
const CreateLinksTableSQL = `
CREATE TABLE IF NOT EXISTS realm_links (
    class_name TEXT NOT NULL,
    field_name TEXT NOT NULL,
    target_class TEXT NOT NULL,
    PRIMARY KEY (class_name, field_name)
)`

// AllSchemaSQL returns all statements needed to prepare a store file.
func AllSchemaSQL() []string {
	return []string{
		CreateMetadataTableSQL,
		CreatePrimaryKeysTableSQL,
		CreateLinksTableSQL,
	}
}

const (
	classTablePrefix = "class_"
	rebuildSuffix    = "__rebuild"
)
