// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHub() (*Hub, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	return NewHub(Options{
		Threshold:  0.7,
		MinSources: 2,
		Multiplier: 1.2,
		MaxAge:     30 * time.Second,
		Clock:      fake,
	}), fake
}

func TestInfluenceRequiresAgreement(t *testing.T) {
	hub, _ := newTestHub()

	hub.Update("heart", 0.9)
	if influence := hub.Influence(); influence.Active {
		t.Fatalf("one source activated influence: %+v", influence)
	}

	hub.Update("focus", 0.5)
	if influence := hub.Influence(); influence.Active || influence.Sources != 2 {
		t.Fatalf("disagreeing sources: %+v", influence)
	}

	hub.Update("focus", 0.75)
	influence := hub.Influence()
	if !influence.Active || influence.Multiplier != 1.2 || influence.Sources != 2 {
		t.Fatalf("agreeing sources: %+v", influence)
	}
}

func TestInfluenceIgnoresStaleReadings(t *testing.T) {
	hub, fake := newTestHub()
	hub.Update("heart", 0.9)
	fake.Advance(time.Minute)
	hub.Update("focus", 0.9)

	influence := hub.Influence()
	if influence.Active || influence.Sources != 1 {
		t.Fatalf("stale reading counted: %+v", influence)
	}
}

func TestUpdateClamps(t *testing.T) {
	hub, _ := newTestHub()
	hub.Update("a", 3)
	hub.Update("b", -1)

	readings := hub.Readings()
	if len(readings) != 2 || readings[0].Value != 1 || readings[1].Value != 0 {
		t.Fatalf("readings = %+v", readings)
	}
}

type scriptedSensor struct {
	name   string
	values []float64
	err    error
}

func (s *scriptedSensor) Name() string { return s.name }

func (s *scriptedSensor) Run(ctx context.Context, publish func(float64)) error {
	for _, value := range s.values {
		publish(value)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func TestRunPublishesIntoOwnSlots(t *testing.T) {
	hub, _ := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- hub.Run(ctx, []Sensor{
			&scriptedSensor{name: "heart", values: []float64{0.2, 0.8}},
			&scriptedSensor{name: "focus", values: []float64{0.9}},
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !hub.Influence().Active {
		if time.Now().After(deadline) {
			t.Fatalf("influence never activated: %+v", hub.Readings())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for hub to stop"); err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
}

func TestRunStopsOnSensorFailure(t *testing.T) {
	hub, _ := newTestHub()
	failure := errors.New("device unplugged")

	err := hub.Run(context.Background(), []Sensor{
		&scriptedSensor{name: "steady"},
		&scriptedSensor{name: "flaky", err: failure},
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Run error = %v, want %v", err, failure)
	}
}
