// Package manager implements the orchestration scope: the ordered
// registration ledger, entity factory methods, and the two scope-wide
// passes (UpdateHosts, SimpleRoute). A Manager owns everything a
// topology build creates and guarantees its teardown regardless of
// failure path.
package manager

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/goombaio/namegenerator"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/virtnet-go/virtnet/address"
	"github.com/virtnet-go/virtnet/logger"
	"github.com/virtnet-go/virtnet/netlinkgw"
	"github.com/virtnet-go/virtnet/topo"
)

const journalDir = "/var/run/virtnet"

var journalBucket = []byte("entities")

// Manager is the scope that owns every entity a topology build creates.
// Registration is insertion-ordered; Close() pops the most recently
// registered entity and stops it, repeating until empty.
type Manager struct {
	mu sync.Mutex

	id   uuid.UUID
	root *netlinkgw.Gateway

	order []topo.Entity
	index map[topo.Entity]int

	namer namegenerator.Generator

	journal     *bbolt.DB
	journalPath string
}

// New opens a root-namespace Gateway and a fresh scope around it.
func New() (*Manager, error) {
	root, err := netlinkgw.OpenRoot()
	if err != nil {
		return nil, err
	}
	id := uuid.New()

	m := &Manager{
		id:    id,
		root:  root,
		index: make(map[topo.Entity]int),
		namer: namegenerator.NewNameGenerator(int64(binary.BigEndian.Uint64(id[:8]))),
	}

	if err := os.MkdirAll(journalDir, 0o755); err == nil {
		path := filepath.Join(journalDir, id.String()+".db")
		if db, err := bbolt.Open(path, 0o600, nil); err == nil {
			if err := db.Update(func(tx *bbolt.Tx) error {
				_, err := tx.CreateBucketIfNotExists(journalBucket)
				return err
			}); err == nil {
				m.journal = db
				m.journalPath = path
			} else {
				_ = db.Close()
			}
		}
	}

	return m, nil
}

// ID returns the scope's correlation UUID.
func (m *Manager) ID() uuid.UUID { return m.id }

// Root returns the Gateway bound to the root network namespace.
func (m *Manager) Root() *netlinkgw.Gateway { return m.root }

// nameOrDefault returns name, or a generated human-readable one if blank.
func (m *Manager) nameOrDefault(name string) string {
	if name != "" {
		return name
	}
	return m.namer.Generate()
}

// Register adds e to the ledger. It is idempotent: re-registering an
// already-registered entity is a no-op.
func (m *Manager) Register(e topo.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[e]; ok {
		return
	}
	m.index[e] = len(m.order)
	m.order = append(m.order, e)
	m.journalWrite(e)
}

// Unregister removes e from the ledger. Finding e goes through the index
// map in O(1); removing it shifts every later entry down one slot and
// re-indexes it, which is linear in the number of later entries. Stopping
// is the caller's responsibility: VirtualLink.Stop calls Unregister
// itself, while hosts, routers and switches do not, so they stay in the
// ledger until Close stops and unregisters them.
func (m *Manager) Unregister(e topo.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index[e]
	if !ok {
		return
	}
	delete(m.index, e)
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	for i := idx; i < len(m.order); i++ {
		m.index[m.order[i]] = i
	}
	m.journalDelete(e)
}

// Close tears down every registered entity in reverse registration order,
// continuing the loop to completion even when a Stop fails, and then
// removes the forensics journal.
func (m *Manager) Close() error {
	var errs []error
	for {
		m.mu.Lock()
		if len(m.order) == 0 {
			m.mu.Unlock()
			break
		}
		e := m.order[len(m.order)-1]
		m.mu.Unlock()

		if err := e.Stop(); err != nil {
			kind, name := describeEntity(e)
			logger.Entity(kind, name).Error("teardown failed", slog.Any("err", err))
			errs = append(errs, err)
		}
		m.Unregister(e)
	}

	m.root.Close()
	if m.journal != nil {
		_ = m.journal.Close()
		_ = os.Remove(m.journalPath)
	}

	if len(errs) > 0 {
		return fmt.Errorf("teardown: %d error(s), first: %w", len(errs), errs[0])
	}
	return nil
}

// describeEntity maps a registered Entity to the (kind, name) pair used to
// scope its log records, since topo.Entity itself only guarantees Stop().
func describeEntity(e topo.Entity) (kind, name string) {
	switch v := e.(type) {
	case *topo.Router:
		return "router", v.Name()
	case *topo.Host:
		return "host", v.Name()
	case *topo.Switch:
		return "switch", v.Name()
	case *topo.VirtualLink:
		return "link", ""
	default:
		return fmt.Sprintf("%T", e), ""
	}
}

func (m *Manager) journalWrite(e topo.Entity) {
	if m.journal == nil {
		return
	}
	key := []byte(fmt.Sprintf("%p", e))
	val := []byte(fmt.Sprintf("%T", e))
	_ = m.journal.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).Put(key, val)
	})
}

func (m *Manager) journalDelete(e topo.Entity) {
	if m.journal == nil {
		return
	}
	key := []byte(fmt.Sprintf("%p", e))
	_ = m.journal.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).Delete(key)
	})
}

// NewNetwork creates an address.Network; it has no kernel-visible state
// and is never registered.
func (m *Manager) NewNetwork(cidr string, routerOffset *int) (*address.Network, error) {
	return address.New(cidr, routerOffset)
}

// NewSwitch creates and registers a bridge-backed Switch.
func (m *Manager) NewSwitch(name string, network *address.Network) (*topo.Switch, error) {
	name = m.nameOrDefault(name)
	sw, err := topo.NewSwitch(m.root, name, network)
	if err != nil {
		return nil, err
	}
	m.Register(sw)
	return sw, nil
}

// NewHost creates and registers a namespaced Host.
func (m *Manager) NewHost(name string) (*topo.Host, error) {
	name = m.nameOrDefault(name)
	h, err := topo.NewHost(name)
	if err != nil {
		return nil, err
	}
	m.Register(h)
	return h, nil
}

// NewRouter creates and registers a Router.
func (m *Manager) NewRouter(name string) (*topo.Router, error) {
	name = m.nameOrDefault(name)
	r, err := topo.NewRouter(name)
	if err != nil {
		return nil, err
	}
	m.Register(r)
	return r, nil
}

// NewPhysicalHost adopts the root namespace as a Container. It has no
// kernel-visible start/stop side effect and is never registered.
func (m *Manager) NewPhysicalHost(name string) *topo.PhysicalHost {
	return topo.NewPhysicalHost(m.nameOrDefault(name), m.root)
}

// Connect builds a Link between local and remote, registering it, and
// wires up addresses and routes.
func (m *Manager) Connect(local, remote topo.InterfaceContainer, name, remoteName string, direction topo.RouteDirection) (*topo.VirtualLink, error) {
	return topo.Connect(m.root, local, remote, name, remoteName, direction, m)
}
