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

package service

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/emicklei/go-restful"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hetcons/go-hetcons/hetpb"
	"github.com/hetcons/go-hetcons/log"
	"github.com/hetcons/go-hetcons/rpc"
)

// Backend is the node client the hub forwards requests to.
type Backend interface {
	Propose(groupRef string, slots []hetpb.ChainSlot, value []byte, timeout time.Duration) (string, string, error)
	QueryDecision(cid string) (*hetpb.Decision, error)
	QuerySlotDecision(slot hetpb.ChainSlot) (*hetpb.Decision, error)
	Attest(att *hetpb.Attestation) error
}

type Slot struct {
	Chain string `json:"chain"`
	Index uint64 `json:"index"`
}

type ProposalRequest struct {
	GroupRef string `json:"group_ref"`
	Slots    []Slot `json:"slots"`
	Value    []byte `json:"value"`
	// round timeout in milliseconds
	Timeout int64 `json:"timeout"`
}

type ProposalResponse struct {
	M1aRef      string `json:"m1a_ref"`
	ConsensusID string `json:"consensus_id"`
}

type Decision struct {
	ConsensusID string   `json:"consensus_id"`
	Slots       []Slot   `json:"slots"`
	Ballot      uint64   `json:"ballot"`
	Value       []byte   `json:"value"`
	Message2bs  []string `json:"message_2bs"`
	Quorum      string   `json:"quorum,omitempty"`
}

type AttestationRequest struct {
	Slots      []Slot   `json:"slots"`
	Message2bs []string `json:"message_2bs"`
	Observer   string   `json:"observer"`
}

// Hub forwards http requests to the observer nodes.
type Hub struct {
	backend Backend
}

func NewHub(backend Backend) *Hub {
	return &Hub{backend: backend}
}

// Propose submits a proposal to the nodes and responds with the
// reference of its 1a.
func (h *Hub) Propose(request *restful.Request, response *restful.Response) {
	req := new(ProposalRequest)
	if err := request.ReadEntity(req); err != nil {
		response.WriteErrorString(http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Slots) == 0 {
		response.WriteErrorString(http.StatusBadRequest, "proposal names no slots")
		return
	}
	m1a, cid, err := h.backend.Propose(req.GroupRef, toChainSlots(req.Slots), req.Value, time.Duration(req.Timeout)*time.Millisecond)
	if err != nil {
		writeError(response, err)
		return
	}
	response.WriteHeaderAndEntity(http.StatusAccepted, &ProposalResponse{M1aRef: m1a, ConsensusID: cid})
}

// QueryDecision responds with the decision of the consensus id.
func (h *Hub) QueryDecision(request *restful.Request, response *restful.Response) {
	dec, err := h.backend.QueryDecision(request.PathParameter("cid"))
	if err != nil {
		writeError(response, err)
		return
	}
	response.WriteEntity(fromDecision(dec))
}

// QuerySlotDecision responds with the decision that decided the slot.
func (h *Hub) QuerySlotDecision(request *restful.Request, response *restful.Response) {
	index, err := strconv.ParseUint(request.PathParameter("index"), 10, 64)
	if err != nil {
		response.WriteErrorString(http.StatusBadRequest, "invalid slot index")
		return
	}
	slot := hetpb.ChainSlot{Chain: request.PathParameter("chain"), Index: index}
	dec, err := h.backend.QuerySlotDecision(slot)
	if err != nil {
		writeError(response, err)
		return
	}
	response.WriteEntity(fromDecision(dec))
}

// Attest forwards an attestation to the nodes.
func (h *Hub) Attest(request *restful.Request, response *restful.Response) {
	req := new(AttestationRequest)
	if err := request.ReadEntity(req); err != nil {
		response.WriteErrorString(http.StatusBadRequest, err.Error())
		return
	}
	att := &hetpb.Attestation{
		Slots:    toChainSlots(req.Slots),
		Observer: req.Observer,
	}
	for _, ref := range req.Message2bs {
		att.Message2bs = append(att.Message2bs, hetpb.Reference{Hash: ref})
	}
	if err := h.backend.Attest(att); err != nil {
		writeError(response, err)
		return
	}
	response.WriteHeader(http.StatusNoContent)
}

func writeError(response *restful.Response, err error) {
	if errors.Is(err, rpc.ErrNotFound) {
		response.WriteErrorString(http.StatusNotFound, err.Error())
		return
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
		response.WriteErrorString(http.StatusBadRequest, st.Message())
		return
	}
	log.Warnw("node request failed", "err", err)
	response.WriteErrorString(http.StatusBadGateway, err.Error())
}

func toChainSlots(slots []Slot) []hetpb.ChainSlot {
	out := make([]hetpb.ChainSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, hetpb.ChainSlot{Chain: s.Chain, Index: s.Index})
	}
	return out
}

func fromDecision(dec *hetpb.Decision) *Decision {
	d := &Decision{
		ConsensusID: dec.ConsensusID,
		Ballot:      dec.Ballot.Counter,
		Value:       dec.Value.Data,
	}
	for _, s := range dec.Slots {
		d.Slots = append(d.Slots, Slot{Chain: s.Chain, Index: s.Index})
	}
	for _, ref := range dec.Message2bs {
		d.Message2bs = append(d.Message2bs, ref.Hash)
	}
	if dec.Quorum != nil {
		d.Quorum = dec.Quorum.Name
	}
	return d
}
