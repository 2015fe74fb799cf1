package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

type sent struct {
	kind    string
	to      int64
	ref     string
	payload string
}

type fakeGateway struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (g *fakeGateway) record(s sent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.msgs = append(g.msgs, s)
	return nil
}

func (g *fakeGateway) SendText(_ context.Context, to int64, text string) error {
	return g.record(sent{kind: "text", to: to, payload: text})
}
func (g *fakeGateway) SendPhoto(_ context.Context, to int64, ref, caption string) error {
	return g.record(sent{kind: "photo", to: to, ref: ref, payload: caption})
}
func (g *fakeGateway) SendDocument(_ context.Context, to int64, ref, caption string) error {
	return g.record(sent{kind: "document", to: to, ref: ref, payload: caption})
}
func (g *fakeGateway) SendAudio(_ context.Context, to int64, ref, caption string) error {
	return g.record(sent{kind: "audio", to: to, ref: ref, payload: caption})
}

type fakeWeather struct {
	rep weather.Report
	err error
}

func (f fakeWeather) Current(context.Context, string) (weather.Report, error) { return f.rep, f.err }

func TestDeliverPicksSendByKind(t *testing.T) {
	cases := []struct {
		name string
		r    reminder.Reminder
		want sent
	}{
		{"text", reminder.Reminder{OwnerID: 1, Name: "pills"}, sent{kind: "text", to: 1, payload: "⏰ Напоминание: pills"}},
		{"photo", reminder.Reminder{OwnerID: 2, Name: "cat", Attachment: &reminder.Attachment{Ref: "p1", Kind: reminder.KindPhoto}}, sent{kind: "photo", to: 2, ref: "p1", payload: "⏰ Напоминание: cat"}},
		{"document", reminder.Reminder{OwnerID: 3, Name: "tax", Attachment: &reminder.Attachment{Ref: "d1", Kind: reminder.KindDocument}}, sent{kind: "document", to: 3, ref: "d1", payload: "⏰ Напоминание: tax"}},
		{"audio", reminder.Reminder{OwnerID: 4, Name: "song", Attachment: &reminder.Attachment{Ref: "a1", Kind: reminder.KindAudio}}, sent{kind: "audio", to: 4, ref: "a1", payload: "⏰ Напоминание: song"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			d := New(gw, nil, logx.Nop())
			require.NoError(t, d.Deliver(context.Background(), tc.r))
			require.Len(t, gw.msgs, 1)
			assert.Equal(t, tc.want, gw.msgs[0])
		})
	}
}

func TestDeliverWeather(t *testing.T) {
	gw := &fakeGateway{}
	rep := weather.Report{City: "Paris", Temperature: 5, FeelsLike: 2, Description: "Дождь", WindSpeed: 4}
	d := New(gw, fakeWeather{rep: rep}, logx.Nop())

	r := reminder.Reminder{OwnerID: 9, IsWeather: true, City: "Paris"}
	require.NoError(t, d.Deliver(context.Background(), r))
	require.Len(t, gw.msgs, 1)
	assert.Equal(t, "⏰ Напоминание о погоде в Paris:\n"+rep.Text(), gw.msgs[0].payload)
}

func TestDeliverWeatherFailureSendsNotice(t *testing.T) {
	gw := &fakeGateway{}
	d := New(gw, fakeWeather{err: &weather.LookupError{Status: 401, Message: "Invalid API key"}}, logx.Nop())

	err := d.Deliver(context.Background(), reminder.Reminder{OwnerID: 9, IsWeather: true, City: "Paris"})
	require.NoError(t, err)
	require.Len(t, gw.msgs, 1)
	assert.Equal(t, "⏰ Напоминание о погоде в Paris:\nОшибка: Invalid API key", gw.msgs[0].payload)
}

func TestDeliverGatewayFailure(t *testing.T) {
	boom := errors.New("blocked by user")
	d := New(&fakeGateway{err: boom}, nil, logx.Nop())
	err := d.Deliver(context.Background(), reminder.Reminder{ID: "r1", OwnerID: 1, Name: "x"})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, boom)
}
