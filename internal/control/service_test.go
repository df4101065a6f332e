package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/die-net/streamhost/internal/relay"
)

type fakeActivator struct {
	keys []relay.SessionKey
	err  error
}

func (f *fakeActivator) Activate(key relay.SessionKey) error {
	f.keys = append(f.keys, key)
	return f.err
}

func TestSessionKey(t *testing.T) {
	key := SessionKey("sid", "a@x/r", "b@y/r")
	require.Len(t, key, 40)
	require.Equal(t, key, SessionKey("sid", "a@x/r", "b@y/r"))
	require.NotEqual(t, key, SessionKey("sid", "b@y/r", "a@x/r"))
	require.Regexp(t, "^[0-9a-f]{40}$", string(key))

	require.Equal(t, relay.SessionKey("da39a3ee5e6b4b0d3255bfef95601890afd80709"), SessionKey("", "", ""))
	require.Equal(t, relay.SessionKey("a9993e364706816aba3e25717850c26c9cd0d89d"), SessionKey("a", "b", "c"))
}

func TestQueries(t *testing.T) {
	eps := []Endpoint{{Host: "relay.example.net", Port: 7777}}
	svc := NewService("Relay", eps, &fakeActivator{}, nil)

	got := svc.QueryEndpoints()
	require.Equal(t, eps, got)
	got[0].Port = 1
	require.Equal(t, 7777, svc.QueryEndpoints()[0].Port)

	caps := svc.QueryCapabilities()
	require.Equal(t, Identity{Category: "proxy", Type: "bytestreams", Name: "Relay"}, caps.Identity)
	require.Equal(t, []string{"http://jabber.org/protocol/bytestreams"}, caps.Features)
}

func TestActivateConditions(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		condition string
	}{
		{name: "ok"},
		{name: "not_found", err: relay.ErrNotFound, condition: ConditionItemNotFound},
		{name: "wrong_count", err: relay.ErrWrongParticipantCount, condition: ConditionNotAllowed},
		{name: "other", err: errors.New("boom"), condition: ConditionInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := &fakeActivator{err: tt.err}
			svc := NewService("", nil, act, nil)

			err := svc.Activate(context.Background(), "s", "i", "t")
			require.Equal(t, []relay.SessionKey{SessionKey("s", "i", "t")}, act.keys)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}

			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			require.Equal(t, tt.condition, cerr.Condition)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestActivateRejectsMissingFields(t *testing.T) {
	act := &fakeActivator{}
	svc := NewService("", nil, act, nil)

	var cerr *Error
	require.ErrorAs(t, svc.Activate(context.Background(), "", "i", "t"), &cerr)
	require.Equal(t, ConditionBadRequest, cerr.Condition)
	require.Empty(t, act.keys)
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("[::1]:7777")
	require.NoError(t, err)
	require.Equal(t, Endpoint{Host: "::1", Port: 7777}, ep)
	require.Equal(t, "[::1]:7777", ep.String())

	for _, s := range []string{"nohost", "h:0", "h:x", "h:70000"} {
		_, err := ParseEndpoint(s)
		require.Error(t, err, s)
	}
}
