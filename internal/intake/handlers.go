package intake

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/reminders"
	kit "remindbot/internal/transport"
	"remindbot/internal/weather"
	logx "remindbot/pkg/logx"
)

// Command names after normalization of /commands and menu buttons.
const (
	cmdStart   = "start"
	cmdNew     = "new"
	cmdWeather = "weather"
	cmdList    = "list"
	cmdToday   = "today"
	cmdCancel  = "cancel"
	cmdSkip    = "skip"
)

var buttonCommands = map[string]string{
	BtnCreate:  cmdNew,
	BtnList:    cmdList,
	BtnWeather: cmdWeather,
	BtnToday:   cmdToday,
}

// commandOf maps "/new", "/new@botname" and menu buttons to a command name.
func commandOf(text string) string {
	if c, ok := buttonCommands[text]; ok {
		return c
	}
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	name = strings.ToLower(name)
	switch name {
	case cmdStart, cmdNew, cmdWeather, cmdList, cmdToday, cmdCancel, cmdSkip:
		return name
	}
	return ""
}

func (r *Router) route(ctx context.Context, req *Request) error {
	if req.Update.Kind == kit.UpdateCallback {
		return r.onCallback(ctx, req)
	}
	req.Command = commandOf(req.Text)
	switch req.Command {
	case cmdStart:
		r.sessions.reset(req.FromID)
		return r.reply(ctx, req, textGreeting, mainMenu())
	case cmdNew:
		r.save(req, session{state: AwaitName})
		return r.reply(ctx, req, textAskName, nil)
	case cmdWeather:
		r.save(req, session{state: AwaitCity, weather: true})
		return r.reply(ctx, req, textAskCity, nil)
	case cmdList:
		r.sessions.reset(req.FromID)
		return r.sendList(ctx, req, "")
	case cmdToday:
		r.sessions.reset(req.FromID)
		return r.sendToday(ctx, req)
	case cmdCancel:
		r.sessions.reset(req.FromID)
		return r.reply(ctx, req, textCancelled, mainMenu())
	}

	sess := r.sessions.get(req.FromID, r.clock.Now())
	switch sess.state {
	case AwaitName:
		return r.onName(ctx, req, sess)
	case AwaitCity:
		return r.onCity(ctx, req, sess)
	case AwaitTime:
		return r.onTime(ctx, req, sess)
	case AwaitAttachment:
		return r.onAttachment(ctx, req, sess)
	case EditName:
		return r.onEditName(ctx, req, sess)
	case EditTime:
		return r.onEditTime(ctx, req, sess)
	}
	return r.reply(ctx, req, textChoose, mainMenu())
}

func (r *Router) save(req *Request, sess session) {
	r.sessions.put(req.FromID, sess, r.clock.Now())
}

func (r *Router) reply(ctx context.Context, req *Request, text string, opt *kit.SendOptions) error {
	_, err := r.out.Send(ctx, req.ChatID, text, opt)
	return err
}

func (r *Router) onName(ctx context.Context, req *Request, sess session) error {
	if req.Text == "" || req.Command == cmdSkip {
		return r.reply(ctx, req, textAskName, nil)
	}
	sess.name = req.Text
	sess.state = AwaitTime
	r.save(req, sess)
	return r.reply(ctx, req, textAskTime, nil)
}

func (r *Router) onCity(ctx context.Context, req *Request, sess session) error {
	if req.Text == "" || req.Command == cmdSkip {
		return r.reply(ctx, req, textAskCity, nil)
	}
	if _, err := r.cities.Current(ctx, req.Text); err != nil {
		r.log.Debug("weather city rejected", logx.String("city", req.Text), logx.Err(err))
		return r.reply(ctx, req, weather.Notice(err), nil)
	}
	sess.city = req.Text
	sess.state = AwaitTime
	r.save(req, sess)
	return r.reply(ctx, req, textAskWeatherAt, nil)
}

func (r *Router) onTime(ctx context.Context, req *Request, sess session) error {
	res, err := r.svc.Preview(req.Text)
	if err != nil {
		if errors.Is(err, reminders.ErrUnresolved) {
			return r.reply(ctx, req, textUnresolved, nil)
		}
		return err
	}
	sess.resolved = &res
	if sess.weather {
		return r.create(ctx, req, sess, nil)
	}
	sess.state = AwaitAttachment
	r.save(req, sess)
	return r.reply(ctx, req, textAskFile, nil)
}

func (r *Router) onAttachment(ctx context.Context, req *Request, sess session) error {
	msg := req.Update.Message
	switch {
	case msg != nil && msg.Attachment != nil:
		att := &reminder.Attachment{Ref: msg.Attachment.Ref, Kind: reminder.AttachmentKind(msg.Attachment.Kind)}
		return r.create(ctx, req, sess, att)
	case req.Command == cmdSkip:
		return r.create(ctx, req, sess, nil)
	}
	return r.reply(ctx, req, textAskFileAgain, nil)
}

func (r *Router) create(ctx context.Context, req *Request, sess session, att *reminder.Attachment) error {
	rem, err := r.svc.Create(ctx, reminders.CreateInput{
		OwnerID:    req.FromID,
		Name:       sess.name,
		IsWeather:  sess.weather,
		City:       sess.city,
		Attachment: att,
		Resolved:   sess.resolved,
	})
	if err != nil {
		if errors.Is(err, reminders.ErrInvalid) {
			// Most likely the previewed time passed while waiting for the attachment.
			sess.state = AwaitTime
			sess.resolved = nil
			r.save(req, sess)
			return r.reply(ctx, req, textTimePassed, nil)
		}
		r.sessions.reset(req.FromID)
		_ = r.reply(ctx, req, textSaveFailed, mainMenu())
		return err
	}
	r.sessions.reset(req.FromID)
	return r.reply(ctx, req, confirmationText(rem, r.cfg.Location), mainMenu())
}

func (r *Router) onEditName(ctx context.Context, req *Request, sess session) error {
	if req.Command != cmdSkip {
		if req.Text == "" {
			return r.reply(ctx, req, textAskNewName, nil)
		}
		name := req.Text
		sess.editName = &name
	}
	sess.state = EditTime
	r.save(req, sess)
	return r.reply(ctx, req, textAskNewTime, nil)
}

func (r *Router) onEditTime(ctx context.Context, req *Request, sess session) error {
	in := reminders.EditInput{Name: sess.editName}
	if req.Command != cmdSkip {
		phrase := req.Text
		in.TimePhrase = &phrase
	}
	_, err := r.svc.Edit(ctx, sess.editID, req.FromID, in)
	switch {
	case err == nil:
		r.sessions.reset(req.FromID)
		return r.sendList(ctx, req, textUpdated+"\n\n")
	case errors.Is(err, reminders.ErrUnresolved):
		return r.reply(ctx, req, textUnresolved, nil)
	case errors.Is(err, reminders.ErrInvalid):
		return r.reply(ctx, req, textTimePassed, nil)
	case errors.Is(err, reminders.ErrNotFound), errors.Is(err, reminders.ErrForbidden):
		r.sessions.reset(req.FromID)
		return r.reply(ctx, req, textEditGone, mainMenu())
	}
	r.sessions.reset(req.FromID)
	_ = r.reply(ctx, req, textUpdateFailed, mainMenu())
	return err
}

// sendList sends the active reminders with the main menu, then the inline
// delete/edit keyboard as a separate message.
func (r *Router) sendList(ctx context.Context, req *Request, prefix string) error {
	rs, err := r.svc.List(ctx, req.FromID)
	if err != nil {
		_ = r.reply(ctx, req, textListFailed, nil)
		return err
	}
	if len(rs) == 0 {
		return r.reply(ctx, req, prefix+textNoActive, mainMenu())
	}
	if err := r.reply(ctx, req, prefix+listText(rs, r.cfg.Location), mainMenu()); err != nil {
		return err
	}
	return r.reply(ctx, req, textChoose, listKeyboard(rs))
}

func (r *Router) sendToday(ctx context.Context, req *Request) error {
	rs, err := r.svc.Today(ctx, req.FromID)
	if err != nil {
		_ = r.reply(ctx, req, textListFailed, nil)
		return err
	}
	if len(rs) == 0 {
		return r.reply(ctx, req, textNoToday, nil)
	}
	return r.reply(ctx, req, todayText(rs, r.cfg.Location), nil)
}

func (r *Router) onCallback(ctx context.Context, req *Request) error {
	cb := req.Update.Callback
	switch {
	case strings.HasPrefix(cb.Data, callbackDelete):
		id := strings.TrimPrefix(cb.Data, callbackDelete)
		if err := r.svc.Delete(ctx, id, req.FromID); err != nil {
			r.log.Debug("delete rejected", logx.String("reminder", id), logx.Err(err))
			return r.out.AnswerCallback(ctx, cb.ID, textDeleteFailed)
		}
		if err := r.out.AnswerCallback(ctx, cb.ID, ""); err != nil {
			r.log.Debug("answer callback failed", logx.Err(err))
		}
		return r.reply(ctx, req, textDeleted, mainMenu())

	case strings.HasPrefix(cb.Data, callbackEdit):
		id := strings.TrimPrefix(cb.Data, callbackEdit)
		if _, err := r.svc.Get(ctx, id, req.FromID); err != nil {
			r.log.Debug("edit rejected", logx.String("reminder", id), logx.Err(err))
			return r.out.AnswerCallback(ctx, cb.ID, textEditFailed)
		}
		r.save(req, session{state: EditName, editID: id})
		if err := r.out.AnswerCallback(ctx, cb.ID, ""); err != nil {
			r.log.Debug("answer callback failed", logx.Err(err))
		}
		return r.reply(ctx, req, textAskNewName, &kit.SendOptions{RemoveMenu: true})
	}
	return r.out.AnswerCallback(ctx, cb.ID, "")
}
