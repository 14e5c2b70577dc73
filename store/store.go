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

// Package store is the content-addressed block store of an observer.
// Messages are kept under the hash of their canonical encoding so a
// reference resolves to the same message on every node.
package store

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/hetcons/go-hetcons/db"
	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
)

var (
	ErrBlockNotFound         = errors.New("block not found")
	ErrGroupNotFound         = errors.New("observer group not found")
	ErrDecisionNotFound      = errors.New("decision not found")
	ErrEmptyReference        = errors.New("empty reference")
	ErrIncompleteAttestation = errors.New("attestation names no slots or no observer")
)

const (
	blockBucket       = "BLOCK"
	groupBucket       = "OBSERVER_GROUP"
	attestationBucket = "ATTESTATION"
	decisionBucket    = "DECISION"
	slotBucket        = "SLOT_DECISION"
)

// Store keeps protocol messages, observer groups, attestations and
// decisions. Decoded values are cached and shared, callers must
// treat them as immutable.
type Store struct {
	database db.Database

	blocks *lru.Cache
	groups *lru.Cache
}

func New(d db.Database, cacheSize int) *Store {
	s := &Store{database: d}
	for _, bucket := range []string{blockBucket, groupBucket, attestationBucket, decisionBucket, slotBucket} {
		if err := d.NewBucket(bucket); err != nil {
			log.Fatalf("create db bucket %s failed: %v", bucket, err)
		}
	}
	blocks, err := lru.New(cacheSize)
	if err != nil {
		log.Fatalf("create block LRU cache failed: %v", err)
	}
	groups, err := lru.New(64)
	if err != nil {
		log.Fatalf("create observer group LRU cache failed: %v", err)
	}
	s.blocks = blocks
	s.groups = groups
	return s
}

// Put saves the message and returns its content reference.
func (s *Store) Put(msg *hetpb.Message) (hetpb.Reference, error) {
	b, err := hetpb.Encode(msg)
	if err != nil {
		return hetpb.Reference{}, fmt.Errorf("encode message failed: %v", err)
	}
	ref, err := hetpb.GetReference(msg)
	if err != nil {
		return hetpb.Reference{}, err
	}
	if s.blocks.Contains(ref.Hash) {
		return ref, nil
	}
	if err := s.database.Put(blockBucket, []byte(ref.Hash), b); err != nil {
		return hetpb.Reference{}, fmt.Errorf("save block %s failed: %v", ref.Hash, err)
	}
	s.blocks.Add(ref.Hash, msg)
	return ref, nil
}

// Get resolves the reference, an unknown reference is ErrBlockNotFound.
func (s *Store) Get(ref hetpb.Reference) (*hetpb.Message, error) {
	if ref.IsEmpty() {
		return nil, ErrEmptyReference
	}
	if msg, ok := s.blocks.Get(ref.Hash); ok {
		return msg.(*hetpb.Message), nil
	}
	b, err := s.database.Get(blockBucket, []byte(ref.Hash))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, ref.Hash)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s failed: %v", ref.Hash, err)
	}
	msg, err := hetpb.DecodeMessage(b)
	if err != nil {
		return nil, fmt.Errorf("decode block %s failed: %v", ref.Hash, err)
	}
	s.blocks.Add(ref.Hash, msg)
	return msg, nil
}

// Has checks whether the reference resolves locally.
func (s *Store) Has(ref hetpb.Reference) bool {
	if ref.IsEmpty() {
		return false
	}
	if s.blocks.Contains(ref.Hash) {
		return true
	}
	_, err := s.database.Get(blockBucket, []byte(ref.Hash))
	return err == nil
}

// PutObserverGroup saves the group and returns its reference.
func (s *Store) PutObserverGroup(group *hetpb.ObserverGroup) (hetpb.Reference, error) {
	b, err := hetpb.Encode(group)
	if err != nil {
		return hetpb.Reference{}, fmt.Errorf("encode observer group failed: %v", err)
	}
	hash, err := hetpb.SHA256Hash(group)
	if err != nil {
		return hetpb.Reference{}, err
	}
	if err := s.database.Put(groupBucket, []byte(hash), b); err != nil {
		return hetpb.Reference{}, fmt.Errorf("save observer group failed: %v", err)
	}
	s.groups.Add(hash, group)
	return hetpb.Reference{Hash: hash}, nil
}

func (s *Store) GetObserverGroup(ref hetpb.Reference) (*hetpb.ObserverGroup, error) {
	if ref.IsEmpty() {
		return nil, ErrEmptyReference
	}
	if g, ok := s.groups.Get(ref.Hash); ok {
		return g.(*hetpb.ObserverGroup), nil
	}
	b, err := s.database.Get(groupBucket, []byte(ref.Hash))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, ref.Hash)
	}
	if err != nil {
		return nil, fmt.Errorf("get observer group %s failed: %v", ref.Hash, err)
	}
	group, err := hetpb.DecodeObserverGroup(b)
	if err != nil {
		return nil, fmt.Errorf("decode observer group %s failed: %v", ref.Hash, err)
	}
	s.groups.Add(ref.Hash, group)
	return group, nil
}

func attestationKey(slot hetpb.ChainSlot, observer string) []byte {
	return []byte(slot.ID() + "#" + observer)
}

// PutAttestation records the attestation for each of its slots.
func (s *Store) PutAttestation(att *hetpb.Attestation) error {
	if len(att.Slots) == 0 || att.Observer == "" {
		return ErrIncompleteAttestation
	}
	b, err := hetpb.Encode(att)
	if err != nil {
		return fmt.Errorf("encode attestation failed: %v", err)
	}
	for _, slot := range att.Slots {
		if err := s.database.Put(attestationBucket, attestationKey(slot, att.Observer), b); err != nil {
			return fmt.Errorf("save attestation of %s failed: %v", slot.ID(), err)
		}
	}
	return nil
}

// HasAttestation checks whether the observer already attested the slot.
func (s *Store) HasAttestation(slot hetpb.ChainSlot, observer string) bool {
	_, err := s.database.Get(attestationBucket, attestationKey(slot, observer))
	return err == nil
}

// PutDecision saves the decision and indexes it by every slot.
func (s *Store) PutDecision(dec *hetpb.Decision) error {
	b, err := hetpb.Encode(dec)
	if err != nil {
		return fmt.Errorf("encode decision failed: %v", err)
	}
	if err := s.database.Put(decisionBucket, []byte(dec.ConsensusID), b); err != nil {
		return fmt.Errorf("save decision %s failed: %v", dec.ConsensusID, err)
	}
	for _, slot := range dec.Slots {
		if err := s.database.Put(slotBucket, []byte(slot.ID()), []byte(dec.ConsensusID)); err != nil {
			return fmt.Errorf("index decision of %s failed: %v", slot.ID(), err)
		}
	}
	return nil
}

func (s *Store) GetDecision(cid string) (*hetpb.Decision, error) {
	b, err := s.database.Get(decisionBucket, []byte(cid))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s failed: %v", cid, err)
	}
	return hetpb.DecodeDecision(b)
}

// GetSlotDecision returns the decision that decided the slot.
func (s *Store) GetSlotDecision(slot hetpb.ChainSlot) (*hetpb.Decision, error) {
	cid, err := s.database.Get(slotBucket, []byte(slot.ID()))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision of %s failed: %v", slot.ID(), err)
	}
	return s.GetDecision(string(cid))
}

// GetDecisions loads every saved decision.
func (s *Store) GetDecisions() ([]*hetpb.Decision, error) {
	vals, err := s.database.GetAll(decisionBucket, nil)
	if err != nil {
		return nil, fmt.Errorf("load decisions failed: %v", err)
	}
	var decs []*hetpb.Decision
	for _, b := range vals {
		dec, err := hetpb.DecodeDecision(b)
		if err != nil {
			return nil, fmt.Errorf("decode decision failed: %v", err)
		}
		decs = append(decs, dec)
	}
	return decs, nil
}
