// Package infra contains technical adapters: the psa-car-controller HTTP
// client, the spot price oracle, the MQTT command sink and the metrics
// exporters. These packages should depend only on the interfaces defined in
// the core packages.
package infra
