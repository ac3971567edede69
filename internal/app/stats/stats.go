// Package stats exposes read-only room counts for operational visibility.
// It carries no authorization of its own.
package stats

import (
	"context"
	"fmt"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

// Source is implemented by the hub; both calls are answered from its loop.
type Source interface {
	RoomStats(ctx context.Context, groupID domain.GroupID) (core.RoomStats, error)
	AllRoomStats(ctx context.Context) (map[domain.GroupID]core.RoomStats, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

func (s *Service) GetRoomStats(ctx context.Context, groupID domain.GroupID) (core.RoomStats, error) {
	st, err := s.src.RoomStats(ctx, groupID)
	if err != nil {
		return core.RoomStats{}, fmt.Errorf("room stats %s: %w", groupID, err)
	}
	return st, nil
}

// GetAllRoomStats lists every non-empty room.
func (s *Service) GetAllRoomStats(ctx context.Context) (map[domain.GroupID]core.RoomStats, error) {
	all, err := s.src.AllRoomStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("all room stats: %w", err)
	}
	out := make(map[domain.GroupID]core.RoomStats, len(all))
	for id, st := range all {
		if st.ConnectionCount > 0 {
			out[id] = st
		}
	}
	return out, nil
}

// TotalConnections sums the connection counts of every room.
func (s *Service) TotalConnections(ctx context.Context) (int, error) {
	all, err := s.GetAllRoomStats(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, st := range all {
		total += st.ConnectionCount
	}
	return total, nil
}
