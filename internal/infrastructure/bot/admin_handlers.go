package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/fsm"
	"pixelpie/internal/monitoring"
	"pixelpie/internal/service"
)

func (r *Router) cmdAdmin(_ context.Context, req *request) error {
	if !r.isAdmin(req.userID()) {
		return r.send(req, textNoAccess, nil)
	}
	kb := r.bot.CreateAdminKeyboard()
	return r.send(req, textAdmin, &kb)
}

func (r *Router) onAdminStats(ctx context.Context, req *request) error {
	stats, err := r.svc.Admin.Stats(ctx)
	if err != nil {
		return err
	}
	kb := r.bot.CreateAdminKeyboard()
	return r.send(req, service.FormatStats(stats), &kb)
}

func (r *Router) onAdminLookup(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	req.session.State = fsm.AdminLookupUser
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskUser, &kb)
}

func (r *Router) onLookupUser(ctx context.Context, req *request) error {
	card, err := r.svc.Admin.LookupUser(ctx, messageText(req.msg))
	if err != nil {
		return err
	}
	req.session = fsm.NewSession()
	kb := r.bot.CreateAdminKeyboard()
	return r.send(req, userCardText(card), &kb)
}

func (r *Router) onAdminGrant(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	req.session.State = fsm.AdminGrantUser
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskUser, &kb)
}

func (r *Router) onGrantUser(ctx context.Context, req *request) error {
	card, err := r.svc.Admin.LookupUser(ctx, messageText(req.msg))
	if err != nil {
		return err
	}
	req.session.SetInt(fsm.KeyGrantUserID, card.User.ID)
	req.session.State = fsm.AdminGrantAmount
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, userCardText(card)+"\n\n"+textAskAmount, &kb)
}

func (r *Router) onGrantAmount(ctx context.Context, req *request) error {
	amount, err := strconv.Atoi(messageText(req.msg))
	if err != nil || amount <= 0 {
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, textBadAmount, &kb)
	}
	target := req.session.GetInt(fsm.KeyGrantUserID)
	user, err := r.svc.Admin.Grant(ctx, req.userID(), strconv.FormatInt(target, 10), amount)
	if err != nil {
		return err
	}
	req.session = fsm.NewSession()

	if err := r.bot.SendText(ctx, user.ID, fmt.Sprintf("🎁 Вам начислено %d 🍪", amount)); err != nil {
		r.log.WithUser(user.ID).WithError(err).Warn("Не удалось уведомить о начислении")
	}
	kb := r.bot.CreateAdminKeyboard()
	return r.send(req, fmt.Sprintf("✅ Начислено %d 🍪 пользователю %s. Баланс: %d 🍪", amount, user.DisplayName(), user.Balance), &kb)
}

// Рассылки

func (r *Router) onAdminBroadcast(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	req.session.State = fsm.AdminBroadcastText
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskBcast, &kb)
}

// onBroadcastDraft запоминает текст или фото рассылки; новое сообщение заменяет черновик
func (r *Router) onBroadcastDraft(_ context.Context, req *request) error {
	text := messageText(req.msg)
	photo := photoFileID(req.msg)
	if text == "" && photo == "" {
		return r.send(req, textAskBcast, nil)
	}
	req.session.Set(fsm.KeyBroadcastTxt, text)
	req.session.Set(fsm.KeyBroadcastPic, photo)
	kb := r.bot.CreateAudienceKeyboard()
	return r.send(req, textAskAudience, &kb)
}

func (r *Router) onAudience(_ context.Context, req *request, arg string) error {
	if req.session.State != fsm.AdminBroadcastText {
		return r.send(req, textStale, nil)
	}
	switch domain.Audience(arg) {
	case domain.AudienceAll, domain.AudiencePaid, domain.AudienceUnpaid:
	default:
		return fmt.Errorf("audience %q: %w", arg, domain.ErrInvalidInput)
	}
	req.session.Set(fsm.KeyAudience, arg)
	kb := r.bot.CreateBroadcastWhenKeyboard()
	return r.send(req, textAskWhen, &kb)
}

func (r *Router) draftBroadcast(req *request) *domain.Broadcast {
	return &domain.Broadcast{
		AuthorID:    req.userID(),
		Text:        req.session.Get(fsm.KeyBroadcastTxt),
		PhotoFileID: req.session.Get(fsm.KeyBroadcastPic),
		Audience:    domain.Audience(req.session.Get(fsm.KeyAudience)),
	}
}

func (r *Router) onBroadcastNow(ctx context.Context, req *request) error {
	if req.session.Get(fsm.KeyAudience) == "" {
		return r.send(req, textStale, nil)
	}
	b := r.draftBroadcast(req)
	if err := r.svc.Broadcasts.SendNow(ctx, b); err != nil {
		return err
	}
	req.session = fsm.NewSession()
	r.log.WithFields(monitoring.Fields{"admin_id": req.userID(), "broadcast_id": b.ID}).Info("Рассылка запущена")
	return r.send(req, textBcastNow, nil)
}

func (r *Router) onBroadcastLater(_ context.Context, req *request) error {
	if req.session.Get(fsm.KeyAudience) == "" {
		return r.send(req, textStale, nil)
	}
	req.session.State = fsm.AdminBroadcastTime
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskTime, &kb)
}

func (r *Router) onBroadcastTime(ctx context.Context, req *request) error {
	at, err := time.ParseInLocation(broadcastTimeLayout, messageText(req.msg), moscow)
	if err != nil {
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, textBadTime, &kb)
	}
	if !at.After(time.Now()) {
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, textPastTime, &kb)
	}

	b := r.draftBroadcast(req)
	b.ScheduledAt = at
	if err := r.svc.Broadcasts.Schedule(ctx, b); err != nil {
		return err
	}
	req.session = fsm.NewSession()
	kb := r.bot.CreateAdminKeyboard()
	return r.send(req, fmt.Sprintf("🗓 Рассылка #%d запланирована на %s (МСК)", b.ID, at.Format(broadcastTimeLayout)), &kb)
}

func (r *Router) onAdminScheduled(ctx context.Context, req *request) error {
	list, err := r.svc.Broadcasts.ListScheduled(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		kb := r.bot.CreateAdminKeyboard()
		return r.send(req, textNoPlanned, &kb)
	}
	kb := r.bot.CreateScheduledKeyboard(list)
	return r.send(req, textPlanned, &kb)
}

func (r *Router) onBroadcastCancel(ctx context.Context, req *request, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("broadcast id %q: %w", arg, domain.ErrInvalidInput)
	}
	if err := r.svc.Broadcasts.Cancel(ctx, id); err != nil {
		return err
	}
	if err := r.send(req, textBcastCancel, nil); err != nil {
		return err
	}
	return r.onAdminScheduled(ctx, req)
}
