package transport

import (
	"context"

	"github.com/kataras/golog"
)

// Dry is an executor that only logs. It is used when no executor URL is configured.
type Dry struct {
	Log *golog.Logger
}

func (d Dry) logger() *golog.Logger {
	if d.Log == nil {
		return golog.Default
	}
	return d.Log
}

// Send logs the command.
func (d Dry) Send(_ context.Context, cmd string) error {
	d.logger().Infof("dry-run: command %s", cmd)
	return nil
}

// RunScript logs the script size.
func (d Dry) RunScript(_ context.Context, script string) error {
	d.logger().Infof("dry-run: script (%d bytes)", len(script))
	return nil
}

// SetJiggler logs the jiggler settings after validation.
func (d Dry) SetJiggler(_ context.Context, j Jiggler) error {
	j = j.Normalize()
	if err := j.Validate(); err != nil {
		return err
	}
	d.logger().Infof("dry-run: jiggler %+v", j)
	return nil
}

// Status reports a disconnected device.
func (d Dry) Status(context.Context) (DeviceStatus, error) {
	return DeviceStatus{WifiMode: "dry-run"}, nil
}

var _ Executor = Dry{}
