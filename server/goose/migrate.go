package goose

// Migrations is the ordered list of registered migrations.
type Migrations []*Migration

// helpers so we can use pkg sort
func (ms Migrations) Len() int      { return len(ms) }
func (ms Migrations) Swap(i, j int) { ms[i], ms[j] = ms[j], ms[i] }
func (ms Migrations) Less(i, j int) bool {
	return ms[i].Version < ms[j].Version
}

// link sets Next and Previous on a sorted list.
func (ms Migrations) link() {
	for i, m := range ms {
		m.Previous, m.Next = -1, -1
		if i > 0 {
			m.Previous = ms[i-1].Version
		}
		if i < len(ms)-1 {
			m.Next = ms[i+1].Version
		}
	}
}

// Current returns the migration with version current.
func (ms Migrations) Current(current int64) (*Migration, error) {
	for _, m := range ms {
		if m.Version == current {
			return m, nil
		}
	}
	return nil, ErrNoCurrentVersion
}

// Next returns the first migration with a version greater than current.
func (ms Migrations) Next(current int64) (*Migration, error) {
	for _, m := range ms {
		if m.Version > current {
			return m, nil
		}
	}
	return nil, ErrNoNextVersion
}

// Previous returns the last migration with a version lower than current.
func (ms Migrations) Previous(current int64) (*Migration, error) {
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Version < current {
			return ms[i], nil
		}
	}
	return nil, ErrNoPreviousVersion
}

// Last returns the most recent migration.
func (ms Migrations) Last() (*Migration, error) {
	if len(ms) == 0 {
		return nil, ErrNoNextVersion
	}
	return ms[len(ms)-1], nil
}

// Versions returns the versions of all migrations, in order.
func (ms Migrations) Versions() []int64 {
	versions := make([]int64, len(ms))
	for i := range ms {
		versions[i] = ms[i].Version
	}
	return versions
}
