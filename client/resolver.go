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

package client

import (
	"errors"
	"strings"

	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"
)

const resolverScheme = "hetcons"

// newResolver creates a resolver which always returns the comma
// separated endpoints.
func newResolver(endpoints string) (*manual.Resolver, error) {
	if endpoints == "" {
		return nil, errors.New("endpoints are empty")
	}
	var addrs []resolver.Address
	for _, addr := range strings.Split(endpoints, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		addrs = append(addrs, resolver.Address{Addr: addr})
	}
	if len(addrs) == 0 {
		return nil, errors.New("endpoints are empty")
	}
	r := manual.NewBuilderWithScheme(resolverScheme)
	r.InitialState(resolver.State{Addresses: addrs})
	return r, nil
}
