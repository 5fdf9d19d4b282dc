// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensorhub is a container for the sensor drivers and the acquisition
// loop of an environmental sensor node.
//
// Each sub-directory holds one device driver (ds1302, scd4x, bme280, mq135,
// ...). The cycle package polls the drivers, folds their readings into one
// record per tick and hands it to a transport. cmd/sensorhub wires it all
// together on a Linux host.
package sensorhub
