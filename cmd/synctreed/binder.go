package main

import (
	"github.com/sirupsen/logrus"

	"github.com/synctree/synctree/handle"
	"github.com/synctree/synctree/link"
	"github.com/synctree/synctree/registry"
	"github.com/synctree/synctree/session"
)

// registryBinder implements session.Binder against a live registry,
// applying remote flux/event/atomop/destroy records the same way a
// local Handle write would, grounded on the teacher's RawFileSystem
// implementations in fs/ translating kernel requests into Inode
// operations.
type registryBinder struct {
	reg *registry.Registry
	log *logrus.Entry
}

func newRegistryBinder(reg *registry.Registry) *registryBinder {
	return &registryBinder{reg: reg, log: logrus.WithField("component", "binder")}
}

func (b *registryBinder) ApplyFlux(path string, f session.FluxRecord) {
	v, err := handle.ImportValue(f.Blob)
	if err != nil {
		b.log.WithError(err).WithField("path", path).Warn("binder: dropping malformed flux blob")
		return
	}
	if err := b.reg.QuickSet(path, v, registry.MainThread); err != nil {
		b.log.WithError(err).WithField("path", path).Warn("binder: applying remote flux failed")
	}
}

func (b *registryBinder) ApplyEvent(e session.EventRecord) {
	b.log.WithField("kind", e.Kind).WithField("path", e.Path).Debug("binder: remote monitor event")
}

func (b *registryBinder) ApplyAtomicOp(a session.AtomicOpRecord) {
	l, err := b.reg.Resolve(a.Path, 0, registry.MainThread)
	if err != nil {
		b.log.WithError(err).WithField("path", a.Path).Warn("binder: atomop target not found")
		return
	}
	switch a.Op {
	case link.OpAddInt:
		l.AddValue(a.Arg1, registry.MainThread)
	case link.OpAddReal:
		l.AddValueReal(float64(a.Arg1), registry.MainThread)
	case link.OpBitSet:
		l.SetBits(a.Arg1, a.Arg2, registry.MainThread)
	}
}

func (b *registryBinder) ApplyDestroy(d session.DestroyRecord) {
	if err := b.reg.Destroy(d.Path, d.Retirement, d.IsGlobal, registry.MainThread); err != nil {
		b.log.WithError(err).WithField("path", d.Path).Warn("binder: remote destroy failed")
	}
}
