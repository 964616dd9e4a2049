// Package link is the MQTT connection to the relay/sensor board and to
// remote operator tooling. Every frame is a small JSON document published
// at QoS 1; the board applies frames idempotently, so redelivery is safe.
package link
