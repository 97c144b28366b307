package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-screening/core/avatar"
	"github.com/koscakluka/ema-screening/core/sessions"
)

const stopTimeout = 10 * time.Second

type avatarRuntime struct {
	client avatar.Client
}

func (a *avatarRuntime) set(client avatar.Client) {
	if a != nil {
		a.client = client
	}
}

func (a *avatarRuntime) isConfigured() bool {
	return a != nil && a.client != nil
}

// ensure returns the avatar session of sessionID, opening one on first use.
// mu serializes creation per interview so a session never gets two avatars.
func (a *avatarRuntime) ensure(ctx context.Context, store sessions.Store, sessionID string, mu *sync.Mutex) (avatar.Handle, error) {
	mu.Lock()
	defer mu.Unlock()

	session, err := store.Get(sessionID)
	if err != nil {
		return avatar.Handle{}, err
	}
	if session.Avatar != nil {
		return fromSessionHandle(*session.Avatar), nil
	}

	handle, err := a.client.CreateSession(ctx)
	if err != nil {
		return avatar.Handle{}, fmt.Errorf("failed to create avatar session: %w", err)
	}
	if err := store.SetAvatar(sessionID, toSessionHandle(handle)); err != nil {
		// The interview ended while the avatar was being opened.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		a.stop(stopCtx, handle)
		return avatar.Handle{}, err
	}

	logger.InfoContext(ctx, "avatar attached", "session_id", sessionID, "avatar_session_id", handle.ID)
	return handle, nil
}

func (a *avatarRuntime) stop(ctx context.Context, handle avatar.Handle) {
	if err := a.client.StopSession(ctx, handle); err != nil {
		logger.WarnContext(ctx, "failed to stop avatar session", "avatar_session_id", handle.ID, "error", err)
	}
}

func toSessionHandle(handle avatar.Handle) *sessions.AvatarHandle {
	return &sessions.AvatarHandle{ID: handle.ID, Token: handle.Token, URL: handle.URL}
}

func fromSessionHandle(handle sessions.AvatarHandle) avatar.Handle {
	return avatar.Handle{ID: handle.ID, Token: handle.Token, URL: handle.URL}
}
