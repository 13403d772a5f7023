// timelapse-receiver - receive timelapse frames pushed by capture devices
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/rs/zerolog"

	"github.com/TheCacophonyProject/timelapse-receiver/events"
	"github.com/TheCacophonyProject/timelapse-receiver/logging"
	"github.com/TheCacophonyProject/timelapse-receiver/mirror"
	"github.com/TheCacophonyProject/timelapse-receiver/receiver"
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir  string `arg:"-d,--config-dir" help:"path to device configuration directory"`
	Address    string `arg:"-a,--address" help:"address to listen on"`
	Port       int    `arg:"-p,--port,env:TIMELAPSE_RECEIVER_PORT" help:"port to listen on (0 uses the config file)"`
	SaveDir    string `arg:"-s,--save-dir,env:TIMELAPSE_RECEIVER_SAVE_DIR" help:"directory to save received files in"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose    bool   `arg:"-v,--verbose" help:"make logging more verbose"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/timelapse-receiver.yaml"
	args.ConfigDir = goconfig.DefaultConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	logger := logging.New(args.Timestamps, args.Verbose)

	logger.Info().Str("version", version).Msg("running")
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	applyArgs(conf, args)
	if err := conf.Validate(); err != nil {
		return err
	}
	logConfig(conf, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listeners, closeListeners, err := makeListeners(ctx, conf, args.ConfigDir, logger)
	if err != nil {
		return err
	}
	defer closeListeners()

	server := receiver.New(conf.Config, logger, listeners...)

	logger.Info().Msg("deleting temp files")
	if err := server.Store().DeleteTempFiles(); err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		return err
	}
	daemon.SdNotify(false, "READY=1")
	go watchdog(ctx)

	return server.Serve(ctx)
}

func makeListeners(ctx context.Context, conf *Config, configDir string, logger zerolog.Logger) ([]receiver.TransferListener, func(), error) {
	var listeners []receiver.TransferListener
	closeAll := func() {}

	var device events.Device
	if conf.ReportEvents || conf.Mirror.Enabled() {
		d, err := readDevice(configDir)
		if err != nil {
			logger.Warn().Err(err).Msg("device identity not available")
		}
		device = d
	}

	if conf.DbusService {
		logger.Info().Msg("starting d-bus service")
		svc := newService()
		if err := startService(svc); err != nil {
			return nil, nil, err
		}
		listeners = append(listeners, svc)
	}

	if conf.ReportEvents {
		listeners = append(listeners, events.NewReporter(device, logger))
	}

	if conf.Mirror.Enabled() {
		metadata := map[string]string{}
		if device.Name != "" {
			metadata["device-name"] = device.Name
		}
		if device.ID > 0 {
			metadata["device-id"] = strconv.Itoa(device.ID)
		}
		m, err := mirror.New(ctx, conf.Mirror, metadata, logger)
		if err != nil {
			return nil, nil, err
		}
		listeners = append(listeners, m)
		closeAll = m.Close
	}

	return listeners, closeAll, nil
}

// watchdog pings systemd at half the configured watchdog interval.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, "WATCHDOG=1")
		}
	}
}
