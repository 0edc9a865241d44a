package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

const directFlightTimeout = 10 * time.Second

// Directory resolves room membership and owns the find-or-create of direct rooms.
type Directory struct {
	repo   *Repository
	flight singleflight.Group
	logger types.Logger
}

// NewDirectory creates a new room directory.
func NewDirectory(repo *Repository, logger types.Logger) *Directory {
	return &Directory{
		repo:   repo,
		logger: logger,
	}
}

type directResult struct {
	room    *Room
	created bool
}

// FindOrCreateDirectRoom returns the room whose participants are exactly
// {a, b}, creating it when none exists.
func (d *Directory) FindOrCreateDirectRoom(ctx context.Context, a, b uint) (*Room, bool, error) {
	if a == 0 || b == 0 {
		return nil, false, domain.Validation("user ids are required")
	}
	if a == b {
		return nil, false, domain.Validation("cannot open a direct room with yourself")
	}

	// Concurrent callers for the same pair share one lookup. Only the caller
	// whose function ran reports created.
	ran := false
	ch := d.flight.DoChan(directKey(a, b), func() (any, error) {
		ran = true
		// Detached from the caller so one cancelled request does not fail the others.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directFlightTimeout)
		defer cancel()

		room, created, err := d.findOrCreate(flightCtx, a, b)
		if err != nil {
			return nil, err
		}
		return directResult{room: room, created: created}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		res := r.Val.(directResult)
		return res.room, res.created && ran, nil
	}
}

func (d *Directory) findOrCreate(ctx context.Context, a, b uint) (*Room, bool, error) {
	room, err := d.findExisting(ctx, a, b)
	if err != nil || room != nil {
		return room, false, err
	}

	room, err = d.repo.CreateRoom(ctx, []uint{a, b})
	if err == nil {
		d.logger.Info("Created direct room", "roomID", room.ID, "userA", a, "userB", b)
		return room, true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, false, err
	}

	// Another process created the room between our lookup and insert.
	room, err = d.findExisting(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if room == nil {
		return nil, false, fmt.Errorf("%w: direct room for %d and %d vanished", domain.ErrConflict, a, b)
	}
	return room, false, nil
}

func (d *Directory) findExisting(ctx context.Context, a, b uint) (*Room, error) {
	ids, err := d.repo.FindDirectRooms(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		d.logger.Warn("Multiple direct rooms for one pair, using the oldest",
			"userA", a, "userB", b, "roomIDs", ids)
	}
	return d.repo.GetRoom(ctx, ids[0])
}

// IsParticipant reports whether userID belongs to roomID.
func (d *Directory) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	return d.repo.IsParticipant(ctx, roomID, userID)
}

// RoomsFor returns the rooms userID participates in.
func (d *Directory) RoomsFor(ctx context.Context, userID uint) ([]*Room, error) {
	return d.repo.FindRoomsContaining(ctx, userID)
}
