// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger = nil
)

const MaxLogLevel = logrus.DebugLevel

func init() {
	logger = logrus.New()
}

// SetLogger replaces the package-wide logger; cmd/swdflash uses this to
// install a prefixed formatter for CLI output.
func SetLogger(loggerInstance *logrus.Logger) {
	logger = loggerInstance
}
