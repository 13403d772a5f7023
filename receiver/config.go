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

package receiver

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/TheCacophonyProject/timelapse-receiver/framing"
)

// DefaultReadTimeout bounds how long a connection may go without
// delivering any bytes.
const DefaultReadTimeout = 30 * time.Second

type Config struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	SaveDir        string        `yaml:"save-dir"`
	ReadTimeout    time.Duration `yaml:"read-timeout"`
	MaxConnections int           `yaml:"max-connections"`
	MaxFieldSize   int           `yaml:"max-field-size"`
	MaxFileSize    int64         `yaml:"max-file-size"`
	MaxReceiveRate int64         `yaml:"max-receive-rate"`
	MinDiskSpace   uint64        `yaml:"min-disk-space"`
}

func DefaultConfig() Config {
	return Config{
		Address:        "0.0.0.0",
		Port:           12345,
		SaveDir:        "pi_imgs",
		ReadTimeout:    DefaultReadTimeout,
		MaxConnections: 16,
		MaxFieldSize:   framing.DefaultMaxFieldSize,
	}
}

func (conf *Config) Validate() error {
	if conf.Port < 0 || conf.Port > 65535 {
		return errors.New("port should be in range 0 - 65535")
	}
	if conf.SaveDir == "" {
		return errors.New("save-dir must be set")
	}
	if conf.ReadTimeout <= 0 {
		return errors.New("read-timeout should be positive")
	}
	if conf.MaxConnections < 1 {
		return errors.New("max-connections should be at least 1")
	}
	if conf.MaxFieldSize < 1 {
		return errors.New("max-field-size should be at least 1")
	}
	if conf.MaxFileSize < 0 {
		return errors.New("max-file-size can't be negative")
	}
	if conf.MaxReceiveRate < 0 {
		return errors.New("max-receive-rate can't be negative")
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (conf *Config) ListenAddr() string {
	return net.JoinHostPort(conf.Address, strconv.Itoa(conf.Port))
}
