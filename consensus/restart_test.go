// Copyright 2019 The go-hetcons Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package consensus

import (
	"testing"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firing struct {
	kind  TimerKind
	value *Value
}

func newTestController(t *testing.T) (*RestartController, chan firing) {
	wp := workerpool.New(2)
	t.Cleanup(wp.StopWait)
	fired := make(chan firing, 8)
	rc := newRestartController(wp.Submit, func(kind TimerKind, value *Value) {
		fired <- firing{kind: kind, value: value}
	})
	return rc, fired
}

func TestTimerFires(t *testing.T) {
	rc, fired := newTestController(t)
	v := &Value{Data: []byte("v1")}

	rc.Arm(TimerRestart, 10*time.Millisecond, v)
	assert.True(t, rc.Live(TimerRestart))

	select {
	case f := <-fired:
		assert.Equal(t, TimerRestart, f.kind)
		require.NotNil(t, f.value)
		assert.Equal(t, "v1", string(f.value.Data))
	case <-time.After(time.Second):
		t.Fatal("restart timer did not fire")
	}
	assert.False(t, rc.Live(TimerRestart))
}

func TestTimerSuperseded(t *testing.T) {
	rc, fired := newTestController(t)

	rc.Arm(TimerM1b, 20*time.Millisecond, nil)
	rc.Arm(TimerM1b, 40*time.Millisecond, nil)
	rc.Arm(TimerM2b, 40*time.Millisecond, nil)
	assert.False(t, rc.Live(TimerM1b))
	assert.True(t, rc.Live(TimerM2b))

	select {
	case f := <-fired:
		assert.Equal(t, TimerM2b, f.kind)
	case <-time.After(time.Second):
		t.Fatal("m2b timer did not fire")
	}

	// test the superseded timers stay silent
	select {
	case f := <-fired:
		t.Fatalf("unexpected firing of %s timer", f.kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerCancelled(t *testing.T) {
	rc, fired := newTestController(t)

	rc.Arm(TimerM1b, 20*time.Millisecond, nil)
	rc.CancelAll()
	assert.False(t, rc.Live(TimerM1b))

	rc.Arm(TimerM2b, 20*time.Millisecond, nil)
	rc.Decided()

	// test arming after decision is ignored
	rc.Arm(TimerRestart, time.Millisecond, nil)
	assert.False(t, rc.Live(TimerRestart))

	select {
	case f := <-fired:
		t.Fatalf("unexpected firing of %s timer", f.kind)
	case <-time.After(100 * time.Millisecond):
	}
}
