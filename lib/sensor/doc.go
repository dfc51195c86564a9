// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensor reduces readings from independent external sources
// into a single [field.Influence].
//
// Each [Sensor] runs in its own goroutine and publishes normalized
// readings in [0, 1] into its own slot of a [Hub]. Once per scheduler
// cycle, [Hub.Influence] reads every slot under the hub lock: the
// influence is active only when at least MinSources fresh readings
// meet the agreement threshold.
//
// [FileSensor] is the one concrete source: it watches a file with
// fsnotify and publishes the number it contains whenever the file is
// rewritten. Anything that can write a number to a file (a heart rate
// bridge, a focus timer, a shell script) can feed the field.
package sensor
