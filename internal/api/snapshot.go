package api

import (
	"context"
	"fmt"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/services/engine"
)

// ApplyConfig rebuilds the engine snapshot from the database and reloads
// the input receivers and output senders. A validation failure leaves the
// engine's previous snapshot active.
func (s *Server) ApplyConfig(ctx context.Context) error {
	universes, err := s.universeRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load universes: %w", err)
	}
	groups, err := s.groupRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	table, err := s.mappingRepo.FindEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mapping table: %w", err)
	}

	if err := s.eng.UpdateConfig(buildSnapshot(universes, groups, table)); err != nil {
		return err
	}

	if s.inputs != nil {
		s.inputs.Reload(universes)
	}
	if s.outputs != nil {
		s.outputs.Reload(universes)
	}
	return nil
}

func buildSnapshot(universes []models.Universe, groups []models.Group, table *models.MappingTable) *engine.Snapshot {
	snap := &engine.Snapshot{
		Universes: make([]engine.UniverseConfig, 0, len(universes)),
		Groups:    make([]engine.GroupConfig, 0, len(groups)),
	}
	for _, u := range universes {
		snap.Universes = append(snap.Universes, engine.UniverseConfig{
			ID:              u.ID,
			Label:           u.Label,
			PassthroughMode: u.PassthroughMode,
			MergeMode:       u.MergeMode,
		})
	}
	for _, g := range groups {
		cfg := engine.GroupConfig{
			ID:             g.ID,
			Name:           g.Name,
			Mode:           g.Mode,
			GridID:         g.GridID,
			Enabled:        g.Enabled,
			MasterUniverse: g.MasterUniverse,
			MasterChannel:  g.MasterChannel,
			MasterValue:    clampByte(g.MasterValue),
			Members:        make([]engine.MemberConfig, 0, len(g.Members)),
		}
		for _, m := range g.Members {
			cfg.Members = append(cfg.Members, engine.MemberConfig{
				UniverseID:    m.UniverseID,
				Channel:       m.Channel,
				VirtualTarget: m.VirtualTarget,
				TargetGroupID: m.TargetGroupID,
			})
		}
		snap.Groups = append(snap.Groups, cfg)
	}
	if table != nil {
		mapping := &engine.MappingConfig{
			Enabled:          table.Enabled,
			UnmappedBehavior: table.UnmappedBehavior,
			Rules:            make([]engine.MappingRuleConfig, 0, len(table.Rules)),
		}
		for _, rule := range table.Rules {
			mapping.Rules = append(mapping.Rules, engine.MappingRuleConfig{
				SrcUniverse: rule.SrcUniverse,
				SrcChannel:  rule.SrcChannel,
				DstKind:     rule.DstKind,
				DstUniverse: rule.DstUniverse,
				DstChannel:  rule.DstChannel,
			})
		}
		snap.Mapping = mapping
	}
	return snap
}
