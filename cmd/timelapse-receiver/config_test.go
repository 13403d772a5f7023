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
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/timelapse-receiver/mirror"
	"github.com/TheCacophonyProject/timelapse-receiver/receiver"
	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

func TestAllDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, Config{
		Config: receiver.Config{
			Address:        "0.0.0.0",
			Port:           12345,
			SaveDir:        "pi_imgs",
			ReadTimeout:    30 * time.Second,
			MaxConnections: 16,
			MaxFieldSize:   4096,
		},
	}, *conf)
}

func TestAllSet(t *testing.T) {
	config := []byte(`
address: 127.0.0.1
port: 9000
save-dir: /var/spool/timelapse
read-timeout: 5s
max-connections: 4
max-field-size: 512
max-file-size: 10485760
max-receive-rate: 1048576
min-disk-space: 200
report-events: true
dbus-service: true
mirror:
    endpoint: https://s3.example.com
    access-key: key
    secret-key: secret
    bucket: frames
    prefix: cam1/
    queue-size: 8
`)

	conf, err := ParseConfig(config)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, Config{
		Config: receiver.Config{
			Address:        "127.0.0.1",
			Port:           9000,
			SaveDir:        "/var/spool/timelapse",
			ReadTimeout:    5 * time.Second,
			MaxConnections: 4,
			MaxFieldSize:   512,
			MaxFileSize:    10485760,
			MaxReceiveRate: 1048576,
			MinDiskSpace:   200,
		},
		ReportEvents: true,
		DbusService:  true,
		Mirror: mirror.Config{
			Endpoint:  "https://s3.example.com",
			AccessKey: "key",
			SecretKey: "secret",
			Bucket:    "frames",
			Prefix:    "cam1/",
			QueueSize: 8,
		},
	}, *conf)
}

func TestInvalidPort(t *testing.T) {
	conf, err := ParseConfig([]byte("port: 70000"))
	require.NoError(t, err)
	assert.EqualError(t, conf.Validate(), "port should be in range 0 - 65535")
}

func TestMirrorWithoutEndpoint(t *testing.T) {
	conf, err := ParseConfig([]byte("mirror:\n    bucket: frames\n"))
	require.NoError(t, err)
	assert.Error(t, conf.Validate())
}

func TestBadYAML(t *testing.T) {
	_, err := ParseConfig([]byte("port: [1, 2"))
	assert.Error(t, err)
}

func TestMissingFileGivesDefaults(t *testing.T) {
	conf, err := ParseConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), *conf)
}

func TestParseConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "timelapse-receiver.yaml")
	require.NoError(t, ioutil.WriteFile(filename, []byte("save-dir: frames\n"), 0644))

	conf, err := ParseConfigFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "frames", conf.SaveDir)
	assert.Equal(t, 12345, conf.Port)
}

func TestArgsOverrideFile(t *testing.T) {
	conf, err := ParseConfig([]byte("port: 9000\nsave-dir: frames\naddress: 10.0.0.1\n"))
	require.NoError(t, err)

	applyArgs(conf, Args{Port: 4000, SaveDir: "elsewhere"})
	assert.Equal(t, 4000, conf.Port)
	assert.Equal(t, "elsewhere", conf.SaveDir)
	assert.Equal(t, "10.0.0.1", conf.Address)
}

func TestServiceCounts(t *testing.T) {
	s := newService()
	name, dbusErr := s.LastFile()
	assert.Nil(t, dbusErr)
	assert.Equal(t, "", name)

	s.FileStored(&store.StoredFile{Name: "a.jpg"})
	s.FileStored(&store.StoredFile{Name: "b.jpg"})
	s.TransferFailed("c.jpg", errors.New("short"))

	received, failed, dbusErr := s.Stats()
	assert.Nil(t, dbusErr)
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, uint64(1), failed)
	name, _ = s.LastFile()
	assert.Equal(t, "b.jpg", name)
}
