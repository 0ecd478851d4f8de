package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/fsm"
	"pixelpie/internal/monitoring"
	"pixelpie/internal/service"
)

const handlerTimeout = 5 * time.Minute

// Services сервисы, которыми пользуется бот
type Services struct {
	Users      *service.UserService
	Prompts    *service.PromptService
	Training   *service.TrainingService
	Generation *service.GenerationService
	Video      *service.VideoService
	Payments   *service.PaymentService
	Broadcasts *service.BroadcastService
	Admin      *service.AdminService
}

// AdminChecker решает, есть ли у пользователя доступ к админке
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

// RouterConfig параметры маршрутизатора
type RouterConfig struct {
	BotUsername string
	Admins      AdminChecker // nil: админов нет
	Workers     int          // одновременно обрабатываемых обновлений
}

// request одно обновление от пользователя вместе с его сессией
type request struct {
	chatID   int64
	user     *domain.User
	created  bool
	session  *fsm.Session
	msg      *tgbotapi.Message
	callback *tgbotapi.CallbackQuery
}

func (req *request) userID() int64 { return req.user.ID }

type handlerFunc func(ctx context.Context, req *request) error

type argHandlerFunc func(ctx context.Context, req *request, arg string) error

type callbackRoute struct {
	data   string
	prefix bool
	admin  bool
	handle argHandlerFunc
}

// Router разбирает обновления Telegram: команды, нажатия кнопок и
// сообщения в зависимости от шага диалога
type Router struct {
	bot         *Bot
	svc         Services
	sessions    fsm.Storage
	throttle    Throttle
	active      *monitoring.ActiveUsersManager
	admins      AdminChecker
	botUsername string
	workers     int
	log         *monitoring.Logger

	locks     *chatLocks
	commands  map[string]handlerFunc
	callbacks []callbackRoute
	states    map[string]handlerFunc
}

func NewRouter(
	cfg RouterConfig,
	bot *Bot,
	svc Services,
	sessions fsm.Storage,
	throttle Throttle,
	active *monitoring.ActiveUsersManager,
	log *monitoring.Logger,
) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 32
	}
	r := &Router{
		bot:         bot,
		svc:         svc,
		sessions:    sessions,
		throttle:    throttle,
		active:      active,
		admins:      cfg.Admins,
		locks:       newChatLocks(),
		botUsername: cfg.BotUsername,
		workers:     cfg.Workers,
		log:         log,
	}
	r.registerRoutes()
	return r
}

func (r *Router) registerRoutes() {
	r.commands = map[string]handlerFunc{
		"start":    r.cmdStart,
		"menu":     r.cmdMenu,
		"help":     r.cmdHelp,
		"balance":  r.cmdBalance,
		"buy":      r.cmdBuy,
		"avatars":  r.cmdAvatars,
		"train":    r.cmdTrain,
		"generate": r.cmdGenerate,
		"video":    r.cmdVideo,
		"cancel":   r.cmdCancel,
		"admin":    r.cmdAdmin,
	}

	plain := func(h handlerFunc) argHandlerFunc {
		return func(ctx context.Context, req *request, _ string) error { return h(ctx, req) }
	}
	r.callbacks = []callbackRoute{
		{data: cbMenu, handle: plain(r.cmdMenu)},
		{data: cbHelp, handle: plain(r.cmdHelp)},
		{data: cbBalance, handle: plain(r.cmdBalance)},
		{data: cbBuy, handle: plain(r.cmdBuy)},
		{data: cbAvatars, handle: plain(r.cmdAvatars)},
		{data: cbTrain, handle: plain(r.cmdTrain)},
		{data: cbTrainConfirm, handle: plain(r.onTrainConfirm)},
		{data: cbGenerate, handle: plain(r.cmdGenerate)},
		{data: cbCustomPrompt, handle: plain(r.onCustomPrompt)},
		{data: cbImprove, handle: func(ctx context.Context, req *request, _ string) error { return r.onPromptChoice(ctx, req, true) }},
		{data: cbRawPrompt, handle: func(ctx context.Context, req *request, _ string) error { return r.onPromptChoice(ctx, req, false) }},
		{data: cbVideo, handle: plain(r.cmdVideo)},
		{data: cbVideoConfirm, handle: plain(r.onVideoConfirm)},
		{data: cbCancel, handle: plain(r.cmdCancel)},
		{data: prefixTariff, prefix: true, handle: r.onTariff},
		{data: prefixGender, prefix: true, handle: r.onGender},
		{data: prefixCategory, prefix: true, handle: r.onCategory},
		{data: prefixStyle, prefix: true, handle: r.onStyle},
		{data: prefixCount, prefix: true, handle: r.onCount},
		{data: prefixAvatar, prefix: true, handle: r.onAvatar},

		{data: cbAdminStats, admin: true, handle: plain(r.onAdminStats)},
		{data: cbAdminBcast, admin: true, handle: plain(r.onAdminBroadcast)},
		{data: cbAdminGrant, admin: true, handle: plain(r.onAdminGrant)},
		{data: cbAdminLookup, admin: true, handle: plain(r.onAdminLookup)},
		{data: cbAdminPlanned, admin: true, handle: plain(r.onAdminScheduled)},
		{data: cbBroadcastNow, admin: true, handle: plain(r.onBroadcastNow)},
		{data: cbBroadcastLate, admin: true, handle: plain(r.onBroadcastLater)},
		{data: prefixAudience, prefix: true, admin: true, handle: r.onAudience},
		{data: prefixBcastStop, prefix: true, admin: true, handle: r.onBroadcastCancel},
	}

	r.states = map[string]handlerFunc{
		fsm.AwaitingPrompt:     r.onPromptText,
		fsm.AwaitingEmail:      r.onEmail,
		fsm.TrainingName:       r.onTrainingName,
		fsm.TrainingGender:     r.onTrainingGenderText,
		fsm.TrainingPhotos:     r.onTrainingPhoto,
		fsm.VideoImage:         r.onVideoImage,
		fsm.VideoPrompt:        r.onVideoPrompt,
		fsm.VideoConfirm:       r.onVideoConfirmText,
		fsm.AdminBroadcastText: r.adminOnly(r.onBroadcastDraft),
		fsm.AdminBroadcastTime: r.adminOnly(r.onBroadcastTime),
		fsm.AdminGrantUser:     r.adminOnly(r.onGrantUser),
		fsm.AdminGrantAmount:   r.adminOnly(r.onGrantAmount),
		fsm.AdminLookupUser:    r.adminOnly(r.onLookupUser),
	}
}

// Run читает обновления и обрабатывает каждое в отдельной горутине.
// Одновременно обрабатывается не больше Workers обновлений.
func (r *Router) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	r.log.WithFields(monitoring.Fields{"workers": r.workers}).Info("🤖 Бот запущен и ожидает сообщения")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Остановка обработки обновлений")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				// начатую обработку доводим до конца даже при остановке
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
				defer cancel()
				r.HandleUpdate(hctx, update)
			}(update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление. Обновления одного чата
// обрабатываются строго последовательно.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			monitoring.RecordError("panic", "bot")
			r.log.WithFields(monitoring.Fields{
				"update_id": update.UpdateID,
				"panic":     rec,
				"stack":     string(debug.Stack()),
			}).Error("Паника при обработке обновления")
		}
	}()

	var (
		from   *tgbotapi.User
		chatID int64
		kind   string
	)
	switch {
	case update.CallbackQuery != nil:
		from = update.CallbackQuery.From
		chatID = from.ID
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		kind = "callback"
	case update.Message != nil && update.Message.From != nil:
		from = update.Message.From
		chatID = update.Message.Chat.ID
		kind = "message"
		if update.Message.IsCommand() {
			kind = "command"
		} else if len(update.Message.Photo) > 0 {
			kind = "photo"
		}
	default:
		return
	}
	monitoring.RecordTelegramUpdate(kind)
	ctx, span := monitoring.StartSpan(ctx, "telegram."+kind, trace.WithAttributes(
		attribute.Int64("telegram.user_id", from.ID),
		attribute.Int("telegram.update_id", update.UpdateID),
	))
	defer span.End()
	if r.active != nil {
		r.active.MarkUserActive(from.ID)
	}

	if kind == "command" || kind == "callback" {
		if r.throttle != nil && !r.throttle.Allow(ctx, from.ID) {
			if update.CallbackQuery != nil {
				r.bot.AnswerCallback(update.CallbackQuery.ID, textThrottled)
			}
			return
		}
	}

	unlock := r.locks.lock(chatID)
	defer unlock()

	log := r.log.WithContext(ctx).WithFields(monitoring.Fields{"user_id": from.ID, "update_id": update.UpdateID, "type": kind})

	var referrerID int64
	if update.Message != nil && update.Message.Command() == "start" {
		referrerID = parseReferrer(update.Message.CommandArguments())
	}
	user, created, err := r.svc.Users.Register(ctx, &domain.User{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
	}, referrerID)
	if err != nil {
		log.WithError(err).Error("Не удалось зарегистрировать пользователя")
		r.bot.SendText(ctx, chatID, errorText(err))
		return
	}
	if created {
		log.WithField("referrer_id", referrerID).Info("Новый пользователь")
	}

	session, err := r.sessions.Get(ctx, chatID)
	if err != nil {
		log.WithError(err).Error("Не удалось прочитать сессию")
		session = fsm.NewSession()
	}

	req := &request{
		chatID:   chatID,
		user:     user,
		created:  created,
		session:  session,
		msg:      update.Message,
		callback: update.CallbackQuery,
	}

	if req.callback != nil {
		r.bot.AnswerCallback(req.callback.ID, "")
		err = r.dispatchCallback(ctx, req)
	} else {
		err = r.dispatchMessage(ctx, req)
	}
	if err != nil {
		monitoring.RecordSpanError(span, err)
		r.replyError(ctx, req, log, err)
	}

	if err := r.saveSession(ctx, req); err != nil {
		log.WithError(err).Error("Не удалось сохранить сессию")
	}
}

func (r *Router) dispatchMessage(ctx context.Context, req *request) error {
	if req.msg.IsCommand() {
		handler, ok := r.commands[req.msg.Command()]
		if !ok {
			return r.send(req, textUnknown, nil)
		}
		// любая команда начинает новый сценарий
		req.session = fsm.NewSession()
		return handler(ctx, req)
	}

	if handler, ok := r.states[req.session.State]; ok {
		return handler(ctx, req)
	}
	kb := r.bot.CreateMainKeyboard()
	return r.send(req, textUnknown, &kb)
}

func (r *Router) dispatchCallback(ctx context.Context, req *request) error {
	data := req.callback.Data
	for _, route := range r.callbacks {
		var arg string
		switch {
		case !route.prefix && data == route.data:
		case route.prefix && strings.HasPrefix(data, route.data):
			arg = strings.TrimPrefix(data, route.data)
		default:
			continue
		}
		if route.admin && !r.isAdmin(req.userID()) {
			return r.send(req, textNoAccess, nil)
		}
		return route.handle(ctx, req, arg)
	}
	r.log.WithFields(monitoring.Fields{"user_id": req.userID(), "data": data}).Warn("Неизвестный callback")
	return nil
}

func (r *Router) saveSession(ctx context.Context, req *request) error {
	s := req.session
	if s.State == fsm.Idle && len(s.Data) == 0 && len(s.Photos) == 0 {
		return r.sessions.Reset(ctx, req.chatID)
	}
	return r.sessions.Set(ctx, req.chatID, s)
}

// replyError отвечает пользователю понятным текстом; неожиданные ошибки логируются
func (r *Router) replyError(ctx context.Context, req *request, log *logrus.Entry, err error) {
	var kb tgbotapi.InlineKeyboardMarkup
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits), errors.Is(err, domain.ErrNoAvatarSlots):
		kb = r.bot.CreateNoCookiesKeyboard()
	case errors.Is(err, domain.ErrNoActiveAvatar):
		kb = r.bot.CreateNoAvatarKeyboard()
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNotFound):
		kb = r.bot.CreateBackKeyboard()
	default:
		monitoring.RecordError("handler", "bot")
		log.WithError(err).Error("Ошибка обработки обновления")
		kb = r.bot.CreateBackKeyboard()
	}
	if sendErr := r.send(req, errorText(err), &kb); sendErr != nil {
		log.WithError(sendErr).Warn("Не удалось отправить сообщение об ошибке")
	}
}

func (r *Router) send(req *request, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return r.bot.SendMessage(req.chatID, text, kb)
}

func (r *Router) isAdmin(userID int64) bool {
	return r.admins != nil && r.admins.IsAdmin(userID)
}

func (r *Router) adminOnly(h handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) error {
		if !r.isAdmin(req.userID()) {
			req.session = fsm.NewSession()
			return r.send(req, textNoAccess, nil)
		}
		return h(ctx, req)
	}
}

// chatLocks мьютексы чатов со счетчиком ссылок: запись удаляется,
// когда последний ожидающий отпустил блокировку
type chatLocks struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[int64]*chatLock)}
}

// lock блокирует чат и возвращает функцию разблокировки
func (l *chatLocks) lock(chatID int64) func() {
	l.mu.Lock()
	c, ok := l.locks[chatID]
	if !ok {
		c = &chatLock{}
		l.locks[chatID] = c
	}
	c.refs++
	l.mu.Unlock()

	c.Lock()
	return func() {
		c.Unlock()
		l.mu.Lock()
		c.refs--
		if c.refs == 0 {
			delete(l.locks, chatID)
		}
		l.mu.Unlock()
	}
}

func (l *chatLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// referralLink ссылка для приглашения друзей
func (r *Router) referralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", r.botUsername, userID)
}

// parseReferrer разбирает аргумент /start вида ref_<id>
func parseReferrer(arg string) int64 {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "ref_") {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// photoFileID самое большое фото сообщения или изображение, присланное файлом
func photoFileID(msg *tgbotapi.Message) string {
	if msg == nil {
		return ""
	}
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID
	}
	return ""
}

// messageText текст сообщения или подпись к фото
func messageText(msg *tgbotapi.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return strings.TrimSpace(msg.Text)
	}
	return strings.TrimSpace(msg.Caption)
}
