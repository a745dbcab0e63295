//go:build !linux
// +build !linux

// File: driver/driver_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-sock/api"
)

func newDriver(cfg *Config) (api.Driver, error) {
	return nil, errors.Wrap(api.ErrNotSupported, "epoll driver requires linux")
}
