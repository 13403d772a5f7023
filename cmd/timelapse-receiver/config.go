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
	"io/ioutil"
	"os"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/timelapse-receiver/events"
	"github.com/TheCacophonyProject/timelapse-receiver/mirror"
	"github.com/TheCacophonyProject/timelapse-receiver/receiver"
)

type Config struct {
	receiver.Config `yaml:",inline"`
	ReportEvents    bool          `yaml:"report-events"`
	DbusService     bool          `yaml:"dbus-service"`
	Mirror          mirror.Config `yaml:"mirror"`
}

func (conf *Config) Validate() error {
	if err := conf.Config.Validate(); err != nil {
		return err
	}
	return conf.Mirror.Validate()
}

func defaultConfig() Config {
	return Config{
		Config: receiver.DefaultConfig(),
	}
}

// ParseConfigFile reads the YAML configuration in filename. A missing
// file gives the defaults.
func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		conf := defaultConfig()
		return &conf, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig()
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// applyArgs overrides file values with anything given on the command
// line or in the environment.
func applyArgs(conf *Config, args Args) {
	if args.Address != "" {
		conf.Address = args.Address
	}
	if args.Port != 0 {
		conf.Port = args.Port
	}
	if args.SaveDir != "" {
		conf.SaveDir = args.SaveDir
	}
}

func logConfig(conf *Config, logger zerolog.Logger) {
	logger.Info().
		Str("listen", conf.ListenAddr()).
		Str("save-dir", conf.SaveDir).
		Dur("read-timeout", conf.ReadTimeout).
		Int("max-connections", conf.MaxConnections).
		Int64("max-file-size", conf.MaxFileSize).
		Int64("max-receive-rate", conf.MaxReceiveRate).
		Uint64("min-disk-space", conf.MinDiskSpace).
		Bool("report-events", conf.ReportEvents).
		Bool("dbus-service", conf.DbusService).
		Str("mirror-bucket", conf.Mirror.Bucket).
		Msg("config")
}

// readDevice loads the device identity from the cacophony config
// directory.
func readDevice(configDir string) (events.Device, error) {
	configRW, err := goconfig.New(configDir)
	if err != nil {
		return events.Device{}, err
	}
	var device goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &device); err != nil {
		return events.Device{}, err
	}
	return events.Device{ID: device.ID, Name: device.Name}, nil
}
