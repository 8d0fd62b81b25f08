package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/contracts-service/internal/model"
	"github.com/nurpe/contracts-service/internal/storage"
)

type ContractLister interface {
	List(ctx context.Context) ([]model.Contract, error)
}

// Sweeper removes attachment files that no contract references. Files younger
// than the grace period are kept so uploads whose record is still being
// written survive.
type Sweeper struct {
	contracts ContractLister
	files     storage.Store
	grace     time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

type SweepResult struct {
	Scanned int
	Removed int
	Failed  int
}

func NewSweeper(contracts ContractLister, files storage.Store, grace time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		contracts: contracts,
		files:     files,
		grace:     grace,
		log:       log.With().Str("component", "sweeper").Logger(),
		now:       time.Now,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	// Files are listed before records so a file stored after this point is
	// never considered.
	objects, err := s.files.List(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: list attachments: %v", ErrStorage, err)
	}
	contracts, err := s.contracts.List(ctx)
	if err != nil {
		return result, storeError("list contracts", err)
	}

	referenced := make(map[string]struct{}, len(contracts))
	for _, c := range contracts {
		if c.HasAttachment() {
			referenced[c.Attachment] = struct{}{}
		}
	}

	cutoff := s.now().Add(-s.grace)
	for _, obj := range objects {
		result.Scanned++
		if _, ok := referenced[obj.Ref]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := s.files.Remove(ctx, obj.Ref); err != nil {
			result.Failed++
			s.log.Warn().Err(err).Str("attachment", obj.Ref).Msg("failed to remove orphaned attachment")
			continue
		}
		result.Removed++
		s.log.Info().Str("attachment", obj.Ref).Time("modified", obj.ModTime).Msg("removed orphaned attachment")
	}

	return result, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error().Err(err).Msg("attachment sweep failed")
				continue
			}
			s.log.Debug().
				Int("scanned", result.Scanned).
				Int("removed", result.Removed).
				Int("failed", result.Failed).
				Msg("attachment sweep finished")
		}
	}
}
