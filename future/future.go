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

// Package future defines some futures as messages
// to communicate between rpc server and node.
package future

import (
	"time"

	"github.com/hetcons/go-hetcons/hetpb"
)

type Future interface {
	Error() error
}

// Allow a future to respond an error in the future
type deferError struct {
	err       error
	errChan   chan error
	responded bool
}

// Every future should call this method to initialize
// underlying error channel
func (d *deferError) Init() {
	d.errChan = make(chan error, 1)
}

// Each future should respond error once and multiple
// calling with different error on the same future will
// have no effects.
func (d *deferError) Respond(err error) {
	if d.errChan == nil || d.responded {
		return
	}
	d.errChan <- err
	close(d.errChan)
	d.responded = true
}

// Error always return the first responded error
func (d *deferError) Error() error {
	if d.err != nil {
		return d.err
	}
	if d.errChan == nil {
		panic("waiting for response on nil channel")
	}
	d.err = <-d.errChan
	return d.err
}

// Future for node server to add new discovered peer to peer manager
type Peer struct {
	deferError
	Addr   string
	NodeID string
}

// Future for node server to hand a phase message to the observer
type Message struct {
	deferError
	Msg *hetpb.Message
}

// Future for node server to start a proposal on the local observer
type Proposal struct {
	deferError
	GroupRef hetpb.Reference
	Slots    []hetpb.ChainSlot
	Value    hetpb.Value
	Timeout  time.Duration
	// reference of the 1a, set on success
	M1aRef hetpb.Reference
}

// Future for node server to query the decision of a proposal or a slot
type Decision struct {
	deferError
	ConsensusID string
	Slot        *hetpb.ChainSlot
	Decision    *hetpb.Decision
}

// Future for node server to apply an externally finalised decision
type Attestation struct {
	deferError
	Attestation *hetpb.Attestation
}

// Future for node server to save an observer group
type ObserverGroup struct {
	deferError
	Group    *hetpb.ObserverGroup
	GroupRef hetpb.Reference
}
