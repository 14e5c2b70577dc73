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
	"sync"
	"time"

	"go.uber.org/atomic"
)

// TimerKind names the phase a restart timer guards.
type TimerKind int8

const (
	// guards the wait after a restart 1a went out
	TimerRestart TimerKind = -1
	// guards the wait for a quorum of 1b
	TimerM1b TimerKind = 0
	// guards the wait for a quorum of 2b
	TimerM2b TimerKind = 1
)

func (k TimerKind) String() string {
	switch k {
	case TimerRestart:
		return "restart"
	case TimerM1b:
		return "m1b"
	case TimerM2b:
		return "m2b"
	}
	return "unknown"
}

type restartTimer struct {
	kind      TimerKind
	timer     *time.Timer
	value     *Value
	cancelled *atomic.Bool
}

// RestartController owns the restart timers of one proposal. A
// proposal waits in one phase at a time, so arming a timer cancels
// every live one. Fired timers hand the restart to submit and never
// run it on the timer goroutine.
type RestartController struct {
	// timer lock, distinct from the proposal decision lock
	lock   sync.Mutex
	timers map[TimerKind]*restartTimer

	decided  *atomic.Bool
	restarts *atomic.Uint32

	submit func(func())
	onFire func(kind TimerKind, value *Value)
}

func newRestartController(submit func(func()), onFire func(TimerKind, *Value)) *RestartController {
	return &RestartController{
		timers:   make(map[TimerKind]*restartTimer),
		decided:  atomic.NewBool(false),
		restarts: atomic.NewUint32(0),
		submit:   submit,
		onFire:   onFire,
	}
}

// Arm starts a timer of the kind, value is only carried by restart timers.
func (rc *RestartController) Arm(kind TimerKind, timeout time.Duration, value *Value) {
	rc.lock.Lock()
	defer rc.lock.Unlock()

	rc.cancelLocked()
	if rc.decided.Load() {
		return
	}
	rt := &restartTimer{
		kind:      kind,
		value:     value,
		cancelled: atomic.NewBool(false),
	}
	rt.timer = time.AfterFunc(timeout, func() { rc.fire(rt) })
	rc.timers[kind] = rt
}

func (rc *RestartController) fire(rt *restartTimer) {
	rc.lock.Lock()
	if rt.cancelled.Load() || rc.decided.Load() {
		rc.lock.Unlock()
		return
	}
	if rc.timers[rt.kind] == rt {
		delete(rc.timers, rt.kind)
	}
	rc.lock.Unlock()

	rc.submit(func() { rc.onFire(rt.kind, rt.value) })
}

func (rc *RestartController) cancelLocked() {
	for kind, rt := range rc.timers {
		rt.cancelled.Store(true)
		rt.timer.Stop()
		delete(rc.timers, kind)
	}
}

// CancelAll cancels every live timer.
func (rc *RestartController) CancelAll() {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	rc.cancelLocked()
}

// Decided cancels the timers for good, later Arm calls are ignored.
func (rc *RestartController) Decided() {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	rc.decided.Store(true)
	rc.cancelLocked()
}

// Live reports whether a timer of the kind is armed.
func (rc *RestartController) Live(kind TimerKind) bool {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	_, ok := rc.timers[kind]
	return ok
}

// countRestart records one more restart and returns the total.
func (rc *RestartController) countRestart() uint32 {
	return rc.restarts.Inc()
}

// Restarts counts the restarts submitted for the proposal.
func (rc *RestartController) Restarts() uint32 {
	return rc.restarts.Load()
}
