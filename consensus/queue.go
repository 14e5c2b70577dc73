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

	"github.com/ef-ds/deque"

	"github.com/hetcons/go-hetcons/hetpb"
)

// waitingQueue parks 1b and 2b messages that arrive before the 1a
// creating their proposal status. 1b messages are served first.
type waitingQueue struct {
	lock     sync.Mutex
	queues   map[string]*deque.Deque
	capacity int
	// total number of parked messages
	size int

	sizeObserver func(int)
}

func newWaitingQueue(capacity int, sizeObserver func(int)) *waitingQueue {
	if sizeObserver == nil {
		sizeObserver = func(int) {}
	}
	return &waitingQueue{
		queues:       make(map[string]*deque.Deque),
		capacity:     capacity,
		sizeObserver: sizeObserver,
	}
}

func (wq *waitingQueue) queueLocked(cid string) *deque.Deque {
	q, ok := wq.queues[cid]
	if !ok {
		q = deque.New()
		wq.queues[cid] = q
	}
	return q
}

// Push parks the message, it is dropped once the queue of the
// proposal holds capacity messages.
func (wq *waitingQueue) Push(cid string, msg *Message) bool {
	wq.lock.Lock()
	defer wq.lock.Unlock()

	q := wq.queueLocked(cid)
	if wq.capacity > 0 && q.Len() >= wq.capacity {
		return false
	}
	if msg.Type == hetpb.MessageType1b {
		q.PushFront(msg)
	} else {
		q.PushBack(msg)
	}
	wq.size++
	wq.sizeObserver(wq.size)
	return true
}

// Pop takes the next parked message of the proposal.
func (wq *waitingQueue) Pop(cid string) (*Message, bool) {
	wq.lock.Lock()
	defer wq.lock.Unlock()

	q, ok := wq.queues[cid]
	if !ok {
		return nil, false
	}
	v, ok := q.PopFront()
	if !ok {
		delete(wq.queues, cid)
		return nil, false
	}
	wq.size--
	wq.sizeObserver(wq.size)
	return v.(*Message), true
}

// Remove discards every parked message of the proposal.
func (wq *waitingQueue) Remove(cid string) {
	wq.lock.Lock()
	defer wq.lock.Unlock()

	if q, ok := wq.queues[cid]; ok {
		wq.size -= q.Len()
		delete(wq.queues, cid)
		wq.sizeObserver(wq.size)
	}
}

func (wq *waitingQueue) Len(cid string) int {
	wq.lock.Lock()
	defer wq.lock.Unlock()

	if q, ok := wq.queues[cid]; ok {
		return q.Len()
	}
	return 0
}
