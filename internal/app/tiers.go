/**
 * @description
 * Tier assignment engine. Evaluates a provider's all-time COMPLETED session
 * count against the provider kind's tier table and maintains the current
 * provider -> tier mapping. Tier definitions arrive through an injected
 * TierSource rather than a module-level cache, so the table can be swapped or
 * invalidated explicitly.
 *
 * @notes
 * - Tier bands use inclusive-lower/exclusive-upper boundaries, so a count that
 *   equals a shared boundary lands in the higher tier.
 * - The tier table must be a total partition of the non-negative integers:
 *   first band starts at 0, bands are contiguous, top band is unbounded.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
	"github.com/learnsphere/commission-service/pkg/rabbitmq"
)

var (
	ErrNoTiersConfigured = errors.New("no active tiers configured for provider kind")
	ErrTierTableInvalid  = errors.New("tier table is not a contiguous partition")
)

// TierSource supplies the active tier table for a provider kind. Implementations
// may cache; Invalidate must drop any cached copy.
type TierSource interface {
	ActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error)
	Invalidate(ctx context.Context, kind domain.ProviderKind) error
}

// RepositoryTierSource reads tier tables straight from the database.
type RepositoryTierSource struct {
	repo store.Repository
}

func NewRepositoryTierSource(repo store.Repository) *RepositoryTierSource {
	return &RepositoryTierSource{repo: repo}
}

func (s *RepositoryTierSource) ActiveTiers(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error) {
	return s.repo.ListActiveTiers(ctx, kind)
}

func (s *RepositoryTierSource) Invalidate(ctx context.Context, kind domain.ProviderKind) error {
	return nil
}

// TierEngine computes tier assignments and progress.
type TierEngine struct {
	repo      store.Repository
	tiers     TierSource
	publisher rabbitmq.Publisher
}

// NewTierEngine creates a new tier engine.
func NewTierEngine(repo store.Repository, tiers TierSource, publisher rabbitmq.Publisher) *TierEngine {
	return &TierEngine{repo: repo, tiers: tiers, publisher: publisher}
}

// validateTierTable checks that the ordered tier list partitions every
// non-negative count into exactly one band.
func validateTierTable(tiers []domain.CommissionTier) error {
	if len(tiers) == 0 {
		return ErrNoTiersConfigured
	}
	if tiers[0].MinActivityCount != 0 {
		return fmt.Errorf("%w: lowest tier %q starts at %d, want 0", ErrTierTableInvalid, tiers[0].TierName, tiers[0].MinActivityCount)
	}
	for i := 0; i < len(tiers)-1; i++ {
		if tiers[i].MaxActivityCount == nil {
			return fmt.Errorf("%w: tier %q is unbounded but not the top tier", ErrTierTableInvalid, tiers[i].TierName)
		}
		if *tiers[i].MaxActivityCount != tiers[i+1].MinActivityCount {
			return fmt.Errorf("%w: gap or overlap between %q and %q", ErrTierTableInvalid, tiers[i].TierName, tiers[i+1].TierName)
		}
	}
	if tiers[len(tiers)-1].MaxActivityCount != nil {
		return fmt.Errorf("%w: top tier %q must be unbounded", ErrTierTableInvalid, tiers[len(tiers)-1].TierName)
	}
	return nil
}

// tierForCount locates the band containing count. With [min, max) bands a count
// on a shared boundary belongs to the higher tier.
func tierForCount(tiers []domain.CommissionTier, count int) (domain.CommissionTier, int) {
	for i, t := range tiers {
		if t.Contains(count) {
			return t, i
		}
	}
	// Unreachable with a validated table; return the top tier defensively.
	return tiers[len(tiers)-1], len(tiers) - 1
}

// loadTierTable fetches and validates the tier table for a provider kind.
func (e *TierEngine) loadTierTable(ctx context.Context, kind domain.ProviderKind) ([]domain.CommissionTier, error) {
	tiers, err := e.tiers.ActiveTiers(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load tier table: %w", err)
	}
	if err := validateTierTable(tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

// AssignTier recomputes and persists the provider's current tier from their
// all-time completed session count. Latest assignment overwrites; no history
// is kept. A tier change is announced best-effort on the event exchange.
func (e *TierEngine) AssignTier(ctx context.Context, providerID uuid.UUID) (*domain.CommissionTier, error) {
	provider, err := e.repo.FindProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	count, err := e.repo.CountCompletedSessionsByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("count completed sessions: %w", err)
	}

	tiers, err := e.loadTierTable(ctx, provider.Kind)
	if err != nil {
		return nil, err
	}
	tier, _ := tierForCount(tiers, count)

	previous, err := e.repo.FindTierAssignment(ctx, providerID)
	if err != nil && !errors.Is(err, store.ErrTierAssignmentNotFound) {
		return nil, err
	}

	assignment := domain.TierAssignment{
		ProviderID: providerID,
		TierID:     tier.ID,
		AssignedAt: time.Now().UTC(),
	}
	if err := e.repo.UpsertTierAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("upsert tier assignment: %w", err)
	}

	if previous != nil && previous.TierID != tier.ID && e.publisher != nil {
		event := domain.TierChangedEvent{
			ProviderID:       providerID,
			PreviousTierID:   previous.TierID,
			PreviousTierName: e.tierName(ctx, previous.TierID),
			NewTierID:        tier.ID,
			NewTierName:      tier.TierName,
			CompletedCount:   count,
			OccurredAt:       time.Now().UTC(),
		}
		if pubErr := e.publisher.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingTierChanged, event); pubErr != nil {
			log.Printf("level=warn component=tier_engine msg=\"tier change event publish failed\" provider_id=%s err=%v", providerID, pubErr)
		}
	}

	return &tier, nil
}

// tierName resolves a tier id for event payloads. The previous tier may have
// been deactivated or deleted since it was assigned; that is not an error.
func (e *TierEngine) tierName(ctx context.Context, tierID uuid.UUID) string {
	tier, err := e.repo.FindTierByID(ctx, tierID)
	if err != nil {
		if !errors.Is(err, store.ErrTierNotFound) {
			log.Printf("level=warn component=tier_engine msg=\"previous tier lookup failed\" tier_id=%s err=%v", tierID, err)
		}
		return ""
	}
	return tier.TierName
}

// GetTierStatus returns the provider's current tier, progress toward the next
// tier, and the requirements message.
func (e *TierEngine) GetTierStatus(ctx context.Context, providerID uuid.UUID) (*domain.TierStatus, error) {
	provider, err := e.repo.FindProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	count, err := e.repo.CountCompletedSessionsByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("count completed sessions: %w", err)
	}

	tiers, err := e.loadTierTable(ctx, provider.Kind)
	if err != nil {
		return nil, err
	}
	current, idx := tierForCount(tiers, count)

	status := &domain.TierStatus{
		CurrentTier:    current,
		CompletedCount: count,
		Benefits:       current.Benefits,
	}

	if idx == len(tiers)-1 {
		status.ProgressPercent = 100
		status.NextTierRequirements = fmt.Sprintf("You have reached %s, the top tier.", current.DisplayName)
		return status, nil
	}

	next := tiers[idx+1]
	status.NextTier = &next
	progress := int(math.Round(float64(count) / float64(next.MinActivityCount) * 100))
	if progress > 100 {
		progress = 100
	}
	status.ProgressPercent = progress
	remaining := next.MinActivityCount - count
	status.NextTierRequirements = fmt.Sprintf("%d more completed sessions to reach %s.", remaining, next.DisplayName)
	return status, nil
}
