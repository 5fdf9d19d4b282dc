// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import "syscall"

func init() {
	// i2c-dev reports a NACK after the address phase as EREMOTEIO on most
	// adapters.
	errnoCodes[syscall.EREMOTEIO] = CodeDataNACK
}
