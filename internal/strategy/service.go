package strategy

import (
	"context"
	"errors"

	"bot-core/pkg/store"
)

// ErrBotNotFound covers both missing bots and bots owned by another user.
var ErrBotNotFound = errors.New("bot not found")

// getBot loads one bot record and enforces ownership. B must embed BotBase.
func getBot[B any](ctx context.Context, st *store.Store, collection, userID, id string) (*B, error) {
	var b B
	if err := store.GetTyped(ctx, st, collection, id, &b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	if any(&b).(Bot).Base().UserID != userID {
		return nil, ErrBotNotFound
	}
	return &b, nil
}

func listBots[B any](ctx context.Context, st *store.Store, collection, userID string) ([]B, error) {
	all, err := store.List[B](ctx, st, collection)
	if err != nil {
		return nil, err
	}
	out := make([]B, 0, len(all))
	for i := range all {
		if any(&all[i]).(Bot).Base().UserID == userID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func deleteBot[B any](ctx context.Context, st *store.Store, collection, userID, id string) error {
	if _, err := getBot[B](ctx, st, collection, userID, id); err != nil {
		return err
	}
	return st.DeleteByID(ctx, collection, id)
}

// toggleStatus flips between armed and paused. Terminal bots re-arm into
// waiting, which is also how an expired grid is revived after an update.
func toggleStatus(b *BotBase) {
	if b.Armed() {
		b.Status = StatusPaused
	} else {
		b.Status = StatusWaiting
	}
}
