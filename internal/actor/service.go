// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package actor

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tombee/remediator/internal/lifecycle"
	"github.com/tombee/remediator/internal/log"
	"github.com/tombee/remediator/pkg/errors"
)

// Service is the registry of all actors in a process. Its parameters map
// actor names to actor parameter maps.
type Service struct {
	*lifecycle.Partial

	logger *slog.Logger

	mu     sync.RWMutex
	actors map[string]Actor
}

// NewService creates an empty service.
func NewService(logger *slog.Logger, opts ...lifecycle.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger: log.WithComponent(logger, "actor-service"),
		actors: make(map[string]Actor),
	}
	s.Partial = lifecycle.NewPartial("actors", s, opts...)
	return s
}

// Register adds an actor. A duplicate name is an error.
func (s *Service) Register(a Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[a.Name()]; ok {
		return &errors.ValidationError{
			Field:   "actor",
			Message: fmt.Sprintf("actor %q already registered", a.Name()),
		}
	}
	s.actors[a.Name()] = a
	return nil
}

// GetActor returns the named actor.
func (s *Service) GetActor(name string) (Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "actor", ID: name}
	}
	return a, nil
}

// GetOperator returns the operator actorName.operatorName.
func (s *Service) GetOperator(actorName, operatorName string) (Operator, error) {
	a, err := s.GetActor(actorName)
	if err != nil {
		return nil, err
	}
	return a.GetOperator(operatorName)
}

// Names returns the registered actor names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.actors))
	for name := range s.actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) list() []Actor {
	names := s.Names()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Actor, 0, len(names))
	for _, n := range names {
		out = append(out, s.actors[n])
	}
	return out
}

// DoConfigure configures every actor that has parameters.
func (s *Service) DoConfigure(params map[string]any) error {
	for _, a := range s.list() {
		sub, ok := params[a.Name()].(map[string]any)
		if !ok {
			s.logger.Debug("no parameters for actor", log.ActorKey, a.Name())
			continue
		}
		s.each(a, "configure", func() error { return a.Configure(sub) })
	}
	return nil
}

// DoStart starts every configured actor.
func (s *Service) DoStart() error {
	for _, a := range s.list() {
		if !a.IsConfigured() {
			continue
		}
		s.each(a, "start", a.Start)
	}
	return nil
}

// DoStop stops every actor.
func (s *Service) DoStop() error {
	for _, a := range s.list() {
		s.each(a, "stop", a.Stop)
	}
	return nil
}

// DoShutdown shuts down every actor.
func (s *Service) DoShutdown() error {
	for _, a := range s.list() {
		s.each(a, "shutdown", a.Shutdown)
	}
	return nil
}

func (s *Service) each(a Actor, action string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("actor "+action+" failed", log.ActorKey, a.Name(), log.Error(err))
	}
}
