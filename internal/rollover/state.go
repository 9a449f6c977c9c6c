package rollover

import (
	"context"
	"errors"

	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store"
)

// StateStore persists the scheduler month across restarts.
type StateStore interface {
	Load(ctx context.Context) (current, lastClosed string, ok bool, err error)
	Save(ctx context.Context, current, lastClosed string) error
}

// StoreState keeps the scheduler state in a rollover_states row.
type StoreState struct {
	Store *store.Store
	Name  string
}

func (s StoreState) Load(ctx context.Context) (string, string, bool, error) {
	st, err := s.Store.LoadRolloverState(ctx, s.Name)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return st.CurrentMonth, st.LastClosedMonth, st.CurrentMonth != "", nil
}

func (s StoreState) Save(ctx context.Context, current, lastClosed string) error {
	return s.Store.SaveRolloverState(ctx, &models.RolloverState{
		Name:            s.Name,
		CurrentMonth:    current,
		LastClosedMonth: lastClosed,
	})
}
