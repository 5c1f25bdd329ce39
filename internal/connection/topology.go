package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	goMongo "go.mongodb.org/mongo-driver/mongo"

	"mongoconn/internal/common"
	"mongoconn/internal/mongo"
)

// Member is one connected node of a topology.
type Member struct {
	Settings mongo.NodeSettings
	Client   *goMongo.Client
}

// Topology is the logical connection handle: a single node, or a master with
// zero or more replicas. Writes always go to the master; reads are spread
// round-robin over slave-okay replicas and fall back to the master.
type Topology struct {
	master      Member
	replicas    []Member
	excluded    []*common.ReplicaError
	masterSlave bool

	next atomic.Uint64
}

func newSingleTopology(node Member) *Topology {
	return &Topology{master: node}
}

func newMasterSlaveTopology(master Member, replicas []Member, excluded []*common.ReplicaError) *Topology {
	return &Topology{
		master:      master,
		replicas:    replicas,
		excluded:    excluded,
		masterSlave: true,
	}
}

// Master returns the master node, or the single node of a non-replicated topology.
func (t *Topology) Master() Member {
	return t.master
}

// Replicas returns the replicas that connected successfully, in configuration order.
func (t *Topology) Replicas() []Member {
	return append([]Member(nil), t.replicas...)
}

// Excluded returns the replicas that failed to connect while the topology was built.
func (t *Topology) Excluded() []*common.ReplicaError {
	return append([]*common.ReplicaError(nil), t.excluded...)
}

// IsMasterSlave reports whether the topology was built from a master/slaves configuration.
func (t *Topology) IsMasterSlave() bool {
	return t.masterSlave
}

// Client returns the client used for writes.
func (t *Topology) Client() *goMongo.Client {
	return t.master.Client
}

// ReadClient returns the client the next read should use.
func (t *Topology) ReadClient() *goMongo.Client {
	readable := make([]Member, 0, len(t.replicas))
	for _, r := range t.replicas {
		if r.Settings.SlaveOkay {
			readable = append(readable, r)
		}
	}
	if len(readable) == 0 {
		return t.master.Client
	}
	i := t.next.Add(1) - 1
	return readable[i%uint64(len(readable))].Client
}

// Ping checks every member of the topology.
func (t *Topology) Ping(ctx context.Context) error {
	var errs []error
	for _, m := range t.members() {
		if err := m.Client.Ping(ctx, mongo.ReadPreference(m.Settings)); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", m.Settings.Address(), err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect closes every member of the topology.
func (t *Topology) Disconnect(ctx context.Context) error {
	var errs []error
	for _, m := range t.members() {
		if err := m.Client.Disconnect(ctx); err != nil && !errors.Is(err, goMongo.ErrClientDisconnected) {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", m.Settings.Address(), err))
		}
	}
	return errors.Join(errs...)
}

// String summarizes the topology, e.g. "master db1:27017 replicas [db2:27017]".
func (t *Topology) String() string {
	if !t.masterSlave {
		return "single " + t.master.Settings.Address()
	}
	addrs := make([]string, 0, len(t.replicas))
	for _, r := range t.replicas {
		addrs = append(addrs, r.Settings.Address())
	}
	return fmt.Sprintf("master %s replicas [%s]", t.master.Settings.Address(), strings.Join(addrs, " "))
}

func (t *Topology) members() []Member {
	return append([]Member{t.master}, t.replicas...)
}
