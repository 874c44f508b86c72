package meter

import (
	"os"
	"runtime"

	"github.com/xn--nding-jua/mqtt2victron/pkg/vedbus"

	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

// Service identifiers used for actor naming, message routing and the
// HTTP surface.
const (
	ServiceGrid = "grid"
	ServicePV   = "pv"
)

const UpdateIndexPath = "/UpdateIndex"

type staticPath struct {
	path    string
	initial any
	text    vedbus.TextFormatter
}

type meteredPath struct {
	path string
	text vedbus.TextFormatter
}

// addManagementPaths registers the management objects required by the
// ccgx dbus-api document.
func addManagementPaths(svc *vedbus.Service, topic string) error {
	paths := []staticPath{
		{"/Mgmt/ProcessName", os.Args[0], nil},
		{"/Mgmt/ProcessVersion", versioninfo.Short() + " on " + runtime.Version(), nil},
		{"/Mgmt/Connection", "MQTT " + topic, nil},
	}
	return addStaticPaths(svc, paths)
}

func addStaticPaths(svc *vedbus.Service, paths []staticPath) error {
	for _, p := range paths {
		opts := []vedbus.PathOption{}
		if p.text != nil {
			opts = append(opts, vedbus.WithText(p.text))
		}
		if err := svc.AddPath(p.path, p.initial, opts...); err != nil {
			return err
		}
	}
	return nil
}

// addMeteredPaths registers the measurement-backed paths. They start
// invalid and are writable from the bus under the accept-without-
// enforcement policy: the coordinator overwrites on its next pass.
func addMeteredPaths(svc *vedbus.Service, paths []meteredPath, onChange vedbus.ChangeCallback) error {
	for _, p := range paths {
		if err := svc.AddPath(p.path, nil, vedbus.WithText(p.text), vedbus.Writable(onChange)); err != nil {
			return err
		}
	}
	return nil
}

func addUpdateIndexPath(svc *vedbus.Service, onChange vedbus.ChangeCallback) error {
	return svc.AddPath(UpdateIndexPath, 0, vedbus.WithText(vedbus.Integer), vedbus.Writable(onChange))
}

// acceptExternalWrite is the change callback for every writable path:
// external writes are accepted and logged but never fed back into the
// field store.
func acceptExternalWrite(logger *zap.Logger) vedbus.ChangeCallback {
	return func(path string, value any) bool {
		logger.Debug("external value update accepted", zap.String("path", path), zap.Any("value", value))
		return true
	}
}
