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
	"net/http"

	"github.com/emicklei/go-restful"
)

// NewHandler routes the hub api onto the backend.
func NewHandler(backend Backend) http.Handler {
	hub := NewHub(backend)

	ws := new(restful.WebService)
	ws.Path("/hetcons").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Route(ws.POST("/proposal").To(hub.Propose))
	ws.Route(ws.GET("/decision/{cid}").To(hub.QueryDecision))
	ws.Route(ws.GET("/slot/{chain}/{index}/decision").To(hub.QuerySlotDecision))
	ws.Route(ws.POST("/attestation").To(hub.Attest))

	container := restful.NewContainer()
	container.Add(ws)

	return container
}
