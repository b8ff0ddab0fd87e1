package metrics

import "github.com/kilianp07/smartcharge/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Listen is the address of the /metrics HTTP endpoint. Empty disables it.
	Listen string `json:"listen"`
}
