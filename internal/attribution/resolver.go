package attribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/tariel-x/affiliates/internal/snapshot"
	"github.com/tariel-x/affiliates/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/tariel-x/affiliates/internal/attribution")

// Directory resolves an invite code to the member who owns it.
type Directory interface {
	OwnerOf(ctx context.Context, code string) (ownerID string, ok bool, err error)
}

// StoreDirectory reads invite ownership from the record store.
type StoreDirectory struct {
	Store *store.Store
}

func (d StoreDirectory) OwnerOf(ctx context.Context, code string) (string, bool, error) {
	rec, err := d.Store.InviteByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.OwnerDiscordID, rec.OwnerDiscordID != "", nil
}

type Resolver struct {
	snapshots *snapshot.Store
	directory Directory
}

func NewResolver(snapshots *snapshot.Store, directory Directory) *Resolver {
	return &Resolver{snapshots: snapshots, directory: directory}
}

// Resolve attributes a join in communityID to an invite code. The
// fetch-diff-replace cycle is serialized per community by the snapshot
// store, so concurrent joins never diff against the same baseline.
//
// A non-nil error is returned only with OutcomeFetchFailed or when the
// directory lookup fails.
func (r *Resolver) Resolve(ctx context.Context, communityID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "attribution.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("community_id", communityID))

	old, hadOld, fresh, err := r.snapshots.Advance(ctx, communityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Result{Outcome: OutcomeFetchFailed}, err
	}
	if !hadOld {
		span.SetAttributes(attribute.String("outcome", OutcomeNoBaseline.String()))
		return Result{Outcome: OutcomeNoBaseline}, nil
	}

	res := Diff(old, fresh)
	if res.Outcome != OutcomeAttributed {
		span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
		return res, nil
	}

	owner, ok, err := r.directory.OwnerOf(ctx, res.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory lookup failed")
		return Result{Outcome: OutcomeUnknownOwner, Code: res.Code, Delta: res.Delta},
			fmt.Errorf("resolve owner of %s: %w", res.Code, err)
	}
	if !ok {
		res.Outcome = OutcomeUnknownOwner
		span.SetAttributes(attribute.String("outcome", res.Outcome.String()), attribute.String("code", res.Code))
		return res, nil
	}

	res.InviterID = owner
	span.SetAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.String("code", res.Code),
		attribute.Int("delta", res.Delta),
	)
	return res, nil
}
