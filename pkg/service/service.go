package service

import (
	"context"

	"github.com/liveclass/liveclass/pkg/logger"
)

type Service interface {
	Run()
	Stop(ctx context.Context) error
}

type Group struct {
	list []Service
	log  *logger.Logger
}

func NewGroup(log *logger.Logger, services ...Service) Group {
	return Group{list: services, log: log}
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

// AddIf appends the service only when the condition holds (e.g. monitoring
// is optional).
func (g *Group) AddIf(cond bool, s Service) {
	if cond {
		g.Add(s)
	}
}

func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

func (g *Group) Stop(ctx context.Context) {
	for _, s := range g.list {
		if err := s.Stop(ctx); err != nil {
			g.log.Error().Err(err).Msgf("service stop failed: %v", s)
		}
	}
}
