package task

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dsqlio/taskcoord/internal/catalog"
)

// CatalogExchangeRegistry is the default ExchangeRegistry (§6): it publishes
// each task's output buffer into a catalog.Registry[OutputBuffer] keyed by
// task ID, the same name->handle primitive §4.7/§4.9 uses elsewhere in the
// worker process, rather than a registry private to this package.
type CatalogExchangeRegistry struct {
	reg *catalog.Registry[OutputBuffer]
}

// NewCatalogExchangeRegistry constructs an empty exchange registry.
func NewCatalogExchangeRegistry() *CatalogExchangeRegistry {
	return &CatalogExchangeRegistry{reg: catalog.New[OutputBuffer]()}
}

// Publish implements ExchangeRegistry.
func (e *CatalogExchangeRegistry) Publish(id ID, buffer OutputBuffer) {
	_ = e.reg.Register(id.String(), buffer)
}

// Unpublish implements ExchangeRegistry.
func (e *CatalogExchangeRegistry) Unpublish(id ID) {
	e.reg.Remove(id.String())
}

// Lookup returns the output buffer published for id, if any. It lets a
// downstream task on another worker resolve a buffer it was only handed the
// ID of.
func (e *CatalogExchangeRegistry) Lookup(id ID) (OutputBuffer, bool) {
	return e.reg.Get(id.String())
}

// RegisterMetrics registers a GaugeFunc reporting the registry's current
// size under reg (§4.8's loki_taskcoord_catalog_registry_size).
func (e *CatalogExchangeRegistry) RegisterMetrics(reg prometheus.Registerer) error {
	gauge := e.reg.SizeGauge(prometheus.GaugeOpts{
		Name: "loki_taskcoord_catalog_registry_size",
		Help: "Current number of output buffers published in the exchange registry",
	})
	return reg.Register(gauge)
}

// UnregisterMetrics removes the registry's GaugeFunc from reg. Since
// GaugeFunc collectors don't compare equal across calls to SizeGauge, this
// unregisters by matching the same descriptor Prometheus derives from the
// name, which is how client_golang expects a functional collector to be
// torn down when the caller lost the original handle.
func (e *CatalogExchangeRegistry) UnregisterMetrics(reg prometheus.Registerer) {
	reg.Unregister(e.reg.SizeGauge(prometheus.GaugeOpts{
		Name: "loki_taskcoord_catalog_registry_size",
		Help: "Current number of output buffers published in the exchange registry",
	}))
}
