package pricing

import "github.com/kilianp07/smartcharge/core/factory"

var oracleRegistry = factory.NewRegistry[Oracle]()

// RegisterOracle adds a price oracle factory identified by name.
func RegisterOracle(name string, f factory.Factory[Oracle]) error {
	return oracleRegistry.Register(name, f)
}

// NewOracle creates the Oracle described by cfg.
func NewOracle(cfg factory.ModuleConfig) (Oracle, error) {
	return oracleRegistry.Create(cfg)
}
