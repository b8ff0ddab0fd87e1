package vehicle

import "github.com/kilianp07/smartcharge/core/factory"

var sinkRegistry = factory.NewRegistry[CommandSink]()

// RegisterCommandSink adds a command sink factory identified by name.
func RegisterCommandSink(name string, f factory.Factory[CommandSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewCommandSink creates the CommandSink described by cfg.
func NewCommandSink(cfg factory.ModuleConfig) (CommandSink, error) {
	return sinkRegistry.Create(cfg)
}

// SinkTypes lists the registered command sink names.
func SinkTypes() []string {
	return sinkRegistry.Types()
}
