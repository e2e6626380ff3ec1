package analytics

type MigrationStatus struct {
	// StatusCode holds the code for the migration status.
	//
	// If StatusCode is NoMigrationsCompleted or AllMigrationsCompleted
	// then all other fields are empty.
	//
	// If StatusCode is SomeMigrationsCompleted, then missing migrations
	// are available in Missing.
	//
	// If StatusCode is UnknownMigrations, then unknown migrations
	// are available in Unknown.
	StatusCode MigrationStatusCode `json:"status_code"`
	// Missing holds the known migrations not yet applied.
	Missing []int64 `json:"missing"`
	// Unknown holds applied migrations this binary knows nothing about.
	Unknown []int64 `json:"unknown"`
}

type MigrationStatusCode int

const (
	// NoMigrationsCompleted indicates the database has no migrations installed.
	NoMigrationsCompleted MigrationStatusCode = iota
	// SomeMigrationsCompleted indicates some (not all) migrations are missing.
	SomeMigrationsCompleted
	// AllMigrationsCompleted means all migrations have been installed successfully.
	AllMigrationsCompleted
	// UnknownMigrations means some unidentified migrations were detected on the database.
	UnknownMigrations
)

func (c MigrationStatusCode) String() string {
	switch c {
	case NoMigrationsCompleted:
		return "none"
	case SomeMigrationsCompleted:
		return "partial"
	case AllMigrationsCompleted:
		return "complete"
	case UnknownMigrations:
		return "unknown"
	}
	return "invalid"
}
