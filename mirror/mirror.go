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

// Package mirror copies received files to an S3 compatible bucket.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

const (
	defaultQueueSize = 64
	uploadTimeout    = 5 * time.Minute
)

type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	QueueSize int    `yaml:"queue-size"`
}

// Enabled reports whether mirroring has been configured.
func (conf *Config) Enabled() bool {
	return conf.Bucket != ""
}

func (conf *Config) Validate() error {
	if !conf.Enabled() {
		return nil
	}
	if conf.Endpoint == "" {
		return errors.New("mirror endpoint must be set when a bucket is given")
	}
	if conf.QueueSize < 0 {
		return errors.New("mirror queue-size can't be negative")
	}
	return nil
}

type uploader interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type job struct {
	name string
	path string
}

// New connects to the configured object store and checks the bucket
// exists. metadata is attached to every uploaded object.
func New(ctx context.Context, conf Config, metadata map[string]string, logger zerolog.Logger) (*Mirror, error) {
	endpoint, secure, err := normaliseEndpoint(conf.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket does not exist: %s", conf.Bucket)
	}
	return newMirror(client, conf, metadata, logger), nil
}

func newMirror(client uploader, conf Config, metadata map[string]string, logger zerolog.Logger) *Mirror {
	size := conf.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	m := &Mirror{
		client:   client,
		bucket:   conf.Bucket,
		prefix:   conf.Prefix,
		metadata: metadata,
		log:      logger.With().Str("bucket", conf.Bucket).Logger(),
		jobs:     make(chan job, size),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Mirror uploads stored files on a background goroutine. The receiver
// never waits for an upload; if the queue is full the file is skipped.
type Mirror struct {
	client   uploader
	bucket   string
	prefix   string
	metadata map[string]string
	log      zerolog.Logger
	jobs     chan job
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func (m *Mirror) FileStored(f *store.StoredFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.jobs <- job{name: f.Name, path: f.Path}:
	default:
		m.log.Warn().Str("filename", f.Name).Msg("mirror queue full, not uploading")
	}
}

func (m *Mirror) TransferFailed(string, error) {}

// Close stops accepting files and waits for queued uploads to finish.
func (m *Mirror) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	m.mu.Unlock()
	<-m.done
}

func (m *Mirror) run() {
	defer close(m.done)
	for j := range m.jobs {
		if err := m.upload(j); err != nil {
			m.log.Error().Err(err).Str("filename", j.name).Msg("mirror upload failed")
			continue
		}
		m.log.Debug().Str("filename", j.name).Msg("mirrored")
	}
}

func (m *Mirror) upload(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	contentType := mime.TypeByExtension(filepath.Ext(j.name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.FPutObject(ctx, m.bucket, m.prefix+j.name, j.path, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: m.metadata,
	})
	return err
}

// normaliseEndpoint accepts either "host:port" or a URL and returns the
// host:port minio wants along with whether to use TLS.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}
