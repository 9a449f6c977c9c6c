package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/models"
	"github.com/tariel-x/affiliates/internal/store/storetest"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/require"
)

func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func TestNotifyDeliversAndPrunes(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)

	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		delivered.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p256dh, auth := browserKeys(t)
	require.NoError(t, st.ReplacePushSubscription(ctx, &models.PushSubscription{
		AdminID: "admin-1", Endpoint: srv.URL + "/ok", P256DH: p256dh, Auth: auth,
	}))
	require.NoError(t, st.ReplacePushSubscription(ctx, &models.PushSubscription{
		AdminID: "admin-2", Endpoint: srv.URL + "/gone", P256DH: p256dh, Auth: auth,
	}))
	require.NoError(t, st.ReplacePushSubscription(ctx, &models.PushSubscription{
		AdminID: "admin-3", Endpoint: srv.URL + "/ok", P256DH: "broken", Auth: auth,
	}))

	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	n := NewNotifier(st, VAPIDKeys{PublicKey: public, PrivateKey: private, Subject: "mailto:admin@example.com"}, srv.Client(), nil)

	n.LeaderboardPublished(ctx, leaderboard.Boards{Month: "2026-01"}, false)
	require.Zero(t, delivered.Load())

	n.LeaderboardPublished(ctx, leaderboard.Boards{Month: "2026-01"}, true)
	require.Equal(t, int32(1), delivered.Load())

	subs, err := st.PushSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "admin-1", subs[0].AdminID)
}

func TestValidateKeys(t *testing.T) {
	p256dh, auth := browserKeys(t)
	require.NoError(t, validateKeys(p256dh, auth))
	require.ErrorIs(t, validateKeys("AAAA", auth), errInvalidKeys)
	require.ErrorIs(t, validateKeys(p256dh, "AAAA"), errInvalidKeys)
}
