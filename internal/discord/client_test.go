package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/tariel-x/affiliates/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestMapError(t *testing.T) {
	require.ErrorIs(t, mapError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)), platform.ErrMessageNotFound)
	require.ErrorIs(t, mapError(restError(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser)), platform.ErrUnreachable)
	require.ErrorIs(t, mapError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownUser)), platform.ErrUnreachable)
	require.ErrorIs(t, mapError(restError(http.StatusForbidden, 0)), platform.ErrUnreachable)

	other := restError(http.StatusInternalServerError, 0)
	mapped := mapError(other)
	require.False(t, errors.Is(mapped, platform.ErrUnreachable))
	require.False(t, errors.Is(mapped, platform.ErrMessageNotFound))

	plain := errors.New("dial tcp: timeout")
	require.Equal(t, plain, mapError(plain))
}

func TestInviteURL(t *testing.T) {
	require.Equal(t, "https://discord.gg/abc123", InviteURL("abc123"))
}
