package link

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vst-controls/green-machine/internal/logger"
)

// Operator topics under the configured prefix.
const (
	topicCommand = "command"
	topicEvents  = "events/alarm"
)

// Command actions accepted on the command topic.
const (
	ActionRunCycle   = "run-cycle"
	ActionStop       = "stop"
	ActionMode       = "mode"
	ActionCalibrate  = "calibrate"
	ActionProfile    = "profile"
	ActionPause      = "pause"
	ActionResume     = "resume"
	ActionClearAlarm = "clear-alarm"
)

// Command is an operator request from remote tooling.
type Command struct {
	Action string `json:"action"`
	// Mode names the target mode for the "mode" action.
	Mode string `json:"mode,omitempty"`
	// Sequence names the sequence for the "run-cycle" action; empty
	// selects the standard run cycle.
	Sequence string `json:"sequence,omitempty"`
	// Profile names the equipment profile for the "profile" action.
	Profile string `json:"profile,omitempty"`
	// Alarm names the alarm for the "clear-alarm" action.
	Alarm string `json:"alarm,omitempty"`
}

// parseCommand decodes an operator command frame.
func parseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("decode command frame: %w", err)
	}

	if c.Action == "" {
		return Command{}, fmt.Errorf("command frame has no action")
	}

	return c, nil
}

// SubscribeCommands delivers operator commands to the handler. Malformed
// frames are logged and dropped.
func (l *Link) SubscribeCommands(ctx context.Context, handler func(context.Context, Command)) error {
	return l.subscribe(l.topic(topicCommand), func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := parseCommand(msg.Payload())
		if err != nil {
			logger.Warnf(ctx, "dropping malformed command frame: %v", err)
			return
		}

		handler(ctx, cmd)
	})
}

// SendCommand publishes an operator command. Used by the control CLI.
func (l *Link) SendCommand(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.publishJSON(l.topic(topicCommand), cmd)
}

// AlarmEvent notifies remote tooling about an alarm transition or warning.
type AlarmEvent struct {
	Alarm   string `json:"alarm"`
	Active  bool   `json:"active"`
	Warning string `json:"warning,omitempty"`
}

// SubscribeAlarmEvents delivers alarm transitions and shutdown warnings
// to the handler. Used by the control CLI.
func (l *Link) SubscribeAlarmEvents(ctx context.Context, handler func(context.Context, AlarmEvent)) error {
	return l.subscribe(l.topic(topicEvents), func(_ mqtt.Client, msg mqtt.Message) {
		var event AlarmEvent
		if err := json.Unmarshal(msg.Payload(), &event); err != nil {
			logger.Warnf(ctx, "dropping malformed alarm event: %v", err)
			return
		}

		handler(ctx, event)
	})
}

// PublishAlarmEvent publishes an alarm transition or warning.
func (l *Link) PublishAlarmEvent(ctx context.Context, event AlarmEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return l.publishJSON(l.topic(topicEvents), event)
}
