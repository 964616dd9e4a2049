package link

import (
	"context"

	"github.com/vst-controls/green-machine/internal/actuator"
	"github.com/vst-controls/green-machine/internal/domain/gm"
)

// Board link topics under the configured prefix.
const (
	topicRelayOutput = "relay/output"
	topicRelayMode   = "relay/mode"
	topicRelayReset  = "relay/reset"
)

// outputFrame switches one relay output.
type outputFrame struct {
	Output string `json:"output"`
	On     bool   `json:"on"`
}

// modeFrame tells the board which mode table to hold, in its own encoding.
type modeFrame struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// Port adapts the board link to the actuator port interface. Confirmation
// is the broker's delivery ack; the board applies frames idempotently.
type Port struct {
	link *Link
}

var (
	_ actuator.Port     = (*Port)(nil)
	_ actuator.Resetter = (*Port)(nil)
)

// NewPort returns an actuator port publishing over the link.
func NewPort(l *Link) *Port {
	return &Port{link: l}
}

// Write switches one output on the board.
func (p *Port) Write(ctx context.Context, id actuator.ID, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.link.publishJSON(p.link.topic(topicRelayOutput), outputFrame{
		Output: string(id),
		On:     on,
	})
}

// ResetBus asks the board to power-cycle the relay bus.
func (p *Port) ResetBus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.link.publishJSON(p.link.topic(topicRelayReset), struct{}{})
}

// SendMode publishes the whole-mode command the board firmware understands,
// using its wire encoding.
func (l *Link) SendMode(ctx context.Context, mode gm.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.publishJSON(l.topic(topicRelayMode), modeFrame{
		Type: "mode",
		Code: mode.WireCode(),
	})
}

// SendCalibrate asks the board to re-zero its pressure transducer.
func (l *Link) SendCalibrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.publishJSON(l.topic(topicRelayMode), struct {
		Type string `json:"type"`
	}{Type: "calibrate"})
}

// SendShutdown tells the board the site has entered the enforced
// shutdown state.
func (l *Link) SendShutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.publishJSON(l.topic(topicRelayMode), struct {
		Type string `json:"type"`
	}{Type: "shutdown"})
}
