package connection

import (
	goMongo "go.mongodb.org/mongo-driver/mongo"
)

// Database is the selected database on a topology.
type Database struct {
	name          string
	topology      *Topology
	authenticated bool
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Authenticated reports whether the handle was created with credentials.
func (d *Database) Authenticated() bool {
	return d.authenticated
}

// Topology returns the topology the database is served from.
func (d *Database) Topology() *Topology {
	return d.topology
}

// Primary returns the database on the master, for writes.
func (d *Database) Primary() *goMongo.Database {
	return d.topology.Client().Database(d.name)
}

// Reader returns the database on the next read-eligible node.
func (d *Database) Reader() *goMongo.Database {
	return d.topology.ReadClient().Database(d.name)
}

// Collection returns a collection on the master.
func (d *Database) Collection(name string) *goMongo.Collection {
	return d.Primary().Collection(name)
}
