package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/fsm"
	"pixelpie/internal/service"
)

const textStale = "Эта кнопка устарела. Начните заново: /menu"

func (r *Router) cmdStart(_ context.Context, req *request) error {
	kb := r.bot.CreateMainKeyboard()
	return r.send(req, welcomeText(req.user, req.created), &kb)
}

func (r *Router) cmdMenu(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	kb := r.bot.CreateMainKeyboard()
	return r.send(req, "🏠 Главное меню", &kb)
}

func (r *Router) cmdHelp(_ context.Context, req *request) error {
	minPhotos, maxPhotos := r.svc.Training.Limits()
	kb := r.bot.CreateBackKeyboard()
	return r.send(req, helpText(r.svc.Generation.Cost(1), r.svc.Video.Cost(), minPhotos, maxPhotos), &kb)
}

func (r *Router) cmdBalance(_ context.Context, req *request) error {
	kb := r.bot.CreateNoCookiesKeyboard()
	return r.send(req, balanceText(req.user, r.referralLink(req.userID())), &kb)
}

func (r *Router) cmdCancel(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	kb := r.bot.CreateMainKeyboard()
	return r.send(req, textCanceled, &kb)
}

// Покупка

func (r *Router) cmdBuy(_ context.Context, req *request) error {
	tariffs := r.svc.Payments.Tariffs()
	kb := r.bot.CreateTariffsKeyboard(tariffs)
	return r.send(req, tariffsText(tariffs), &kb)
}

func (r *Router) onTariff(ctx context.Context, req *request, tariffID string) error {
	return r.createPayment(ctx, req, tariffID)
}

func (r *Router) createPayment(ctx context.Context, req *request, tariffID string) error {
	payment, err := r.svc.Payments.CreatePayment(ctx, req.userID(), tariffID)
	if errors.Is(err, service.ErrEmailRequired) {
		req.session = fsm.NewSession()
		req.session.State = fsm.AwaitingEmail
		req.session.Set(fsm.KeyTariffID, tariffID)
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, textAskEmail, &kb)
	}
	if err != nil {
		return err
	}
	kb := r.bot.CreatePayKeyboard(payment.ConfirmationURL)
	return r.send(req, paymentText(payment), &kb)
}

func (r *Router) onEmail(ctx context.Context, req *request) error {
	email, err := r.svc.Users.SetEmail(ctx, req.userID(), messageText(req.msg))
	if errors.Is(err, domain.ErrInvalidInput) {
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, "Похоже, это не email. Попробуйте еще раз.", &kb)
	}
	if err != nil {
		return err
	}
	req.user.Email = email

	tariffID := req.session.Get(fsm.KeyTariffID)
	req.session = fsm.NewSession()
	if err := r.send(req, textEmailSaved, nil); err != nil {
		return err
	}
	if tariffID == "" {
		return nil
	}
	return r.createPayment(ctx, req, tariffID)
}

// Аватары и обучение

func (r *Router) cmdAvatars(ctx context.Context, req *request) error {
	avatars, err := r.svc.Training.Avatars(ctx, req.userID())
	if err != nil {
		return err
	}
	kb := r.bot.CreateAvatarsKeyboard(avatars)
	return r.send(req, avatarsText(avatars), &kb)
}

func (r *Router) onAvatar(ctx context.Context, req *request, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("avatar id %q: %w", arg, domain.ErrInvalidInput)
	}
	avatar, err := r.svc.Training.Activate(ctx, req.userID(), id)
	if err != nil {
		return err
	}
	kb := r.bot.CreateMainKeyboard()
	return r.send(req, fmt.Sprintf("✅ Аватар «%s» теперь активен.", avatar.Name), &kb)
}

func (r *Router) cmdTrain(_ context.Context, req *request) error {
	if req.user.AvatarSlots < 1 {
		return domain.ErrNoAvatarSlots
	}
	req.session = fsm.NewSession()
	req.session.State = fsm.TrainingName
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskName, &kb)
}

func (r *Router) onTrainingName(_ context.Context, req *request) error {
	name, err := service.ValidateName(messageText(req.msg))
	if err != nil {
		kb := r.bot.CreateCancelKeyboard()
		return r.send(req, "Имя должно быть от 1 до 40 символов. "+textAskName, &kb)
	}
	req.session.Set(fsm.KeyAvatarName, name)
	req.session.State = fsm.TrainingGender
	kb := r.bot.CreateGenderKeyboard()
	return r.send(req, textAskGender, &kb)
}

func (r *Router) onTrainingGenderText(_ context.Context, req *request) error {
	kb := r.bot.CreateGenderKeyboard()
	return r.send(req, textAskGender, &kb)
}

func (r *Router) onGender(_ context.Context, req *request, arg string) error {
	if req.session.State != fsm.TrainingGender {
		return r.send(req, textStale, nil)
	}
	gender, ok := domain.ParseGender(arg)
	if !ok {
		return fmt.Errorf("gender %q: %w", arg, domain.ErrInvalidInput)
	}
	req.session.Set(fsm.KeyGender, string(gender))
	req.session.State = fsm.TrainingPhotos
	minPhotos, maxPhotos := r.svc.Training.Limits()
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, trainingAskPhotos(minPhotos, maxPhotos), &kb)
}

func (r *Router) onTrainingPhoto(_ context.Context, req *request) error {
	fileID := photoFileID(req.msg)
	if fileID == "" {
		return r.send(req, textWaitPhoto, nil)
	}
	minPhotos, maxPhotos := r.svc.Training.Limits()
	count, added := req.session.AddPhoto(fileID, maxPhotos)
	if !added {
		kb := r.bot.CreateTrainConfirmKeyboard()
		return r.send(req, fmt.Sprintf("Уже загружено максимальное количество фото: %d.", maxPhotos), &kb)
	}
	if count < minPhotos {
		return r.send(req, photosProgressText(count, minPhotos, maxPhotos), nil)
	}
	kb := r.bot.CreateTrainConfirmKeyboard()
	return r.send(req, photosProgressText(count, minPhotos, maxPhotos), &kb)
}

func (r *Router) onTrainConfirm(ctx context.Context, req *request) error {
	if req.session.State != fsm.TrainingPhotos {
		return r.send(req, textStale, nil)
	}
	if err := r.send(req, "⏳ Загружаю фото и запускаю обучение...", nil); err != nil {
		return err
	}
	avatar, err := r.svc.Training.Start(ctx, service.TrainingRequest{
		UserID:   req.userID(),
		ChatID:   req.chatID,
		Name:     req.session.Get(fsm.KeyAvatarName),
		Gender:   domain.Gender(req.session.Get(fsm.KeyGender)),
		PhotoIDs: req.session.Photos,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoAvatarSlots) {
			req.session = fsm.NewSession()
		}
		return err
	}
	req.session = fsm.NewSession()
	kb := r.bot.CreateBackKeyboard()
	return r.send(req, trainingStarted(avatar), &kb)
}

// Генерация фото

func (r *Router) cmdGenerate(ctx context.Context, req *request) error {
	avatar, err := r.svc.Generation.ActiveAvatar(ctx, req.userID())
	if err != nil {
		return err
	}
	req.session = fsm.NewSession()
	kb := r.bot.CreateCategoriesKeyboard()
	return r.send(req, fmt.Sprintf("📸 Аватар: %s\n\nВыберите категорию стилей или опишите кадр сами.", avatar.Name), &kb)
}

func (r *Router) onCategory(_ context.Context, req *request, arg string) error {
	category, ok := service.FindCategory(arg)
	if !ok {
		return fmt.Errorf("category %q: %w", arg, domain.ErrInvalidInput)
	}
	kb := r.bot.CreateStylesKeyboard(category)
	return r.send(req, textChooseStyle, &kb)
}

func (r *Router) onStyle(ctx context.Context, req *request, arg string) error {
	avatar, err := r.svc.Generation.ActiveAvatar(ctx, req.userID())
	if err != nil {
		return err
	}
	prompt, err := r.svc.Prompts.FromStyle(arg, avatar)
	if err != nil {
		return err
	}
	req.session = fsm.NewSession()
	req.session.Set(fsm.KeyStyle, arg)
	req.session.Set(fsm.KeyPrompt, prompt)
	kb := r.bot.CreateCountKeyboard(r.svc.Generation.Cost(1))
	return r.send(req, textAskCount, &kb)
}

func (r *Router) onCustomPrompt(ctx context.Context, req *request) error {
	if _, err := r.svc.Generation.ActiveAvatar(ctx, req.userID()); err != nil {
		return err
	}
	req.session = fsm.NewSession()
	req.session.State = fsm.AwaitingPrompt
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textAskPrompt, &kb)
}

func (r *Router) onPromptText(_ context.Context, req *request) error {
	text := messageText(req.msg)
	if text == "" {
		return r.send(req, textAskPrompt, nil)
	}
	req.session.State = fsm.Idle
	req.session.Set(fsm.KeyRawPrompt, text)
	kb := r.bot.CreateImproveKeyboard()
	return r.send(req, textAskImprove, &kb)
}

func (r *Router) onPromptChoice(ctx context.Context, req *request, improve bool) error {
	raw := req.session.Get(fsm.KeyRawPrompt)
	if raw == "" {
		return r.send(req, textStale, nil)
	}
	avatar, err := r.svc.Generation.ActiveAvatar(ctx, req.userID())
	if err != nil {
		return err
	}
	prompt, err := r.svc.Prompts.FromText(ctx, raw, avatar, improve)
	if err != nil {
		return err
	}
	req.session = fsm.NewSession()
	req.session.Set(fsm.KeyPrompt, prompt)
	kb := r.bot.CreateCountKeyboard(r.svc.Generation.Cost(1))
	return r.send(req, fmt.Sprintf("📝 Промпт: %s\n\n%s", prompt, textAskCount), &kb)
}

func (r *Router) onCount(ctx context.Context, req *request, arg string) error {
	prompt := req.session.Get(fsm.KeyPrompt)
	if prompt == "" {
		return r.send(req, textStale, nil)
	}
	count, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("count %q: %w", arg, domain.ErrInvalidInput)
	}
	if _, err := r.svc.Generation.GenerateImages(ctx, service.ImageRequest{
		UserID: req.userID(),
		ChatID: req.chatID,
		Prompt: prompt,
		Style:  req.session.Get(fsm.KeyStyle),
		Count:  count,
	}); err != nil {
		return err
	}
	req.session = fsm.NewSession()
	return r.send(req, textGenerating, nil)
}

// Видео

func (r *Router) cmdVideo(_ context.Context, req *request) error {
	req.session = fsm.NewSession()
	req.session.State = fsm.VideoImage
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textVideoPhoto, &kb)
}

func (r *Router) onVideoImage(_ context.Context, req *request) error {
	fileID := photoFileID(req.msg)
	if fileID == "" {
		return r.send(req, textWaitPhoto, nil)
	}
	req.session.Set(fsm.KeyImageFileID, fileID)
	req.session.State = fsm.VideoPrompt
	kb := r.bot.CreateCancelKeyboard()
	return r.send(req, textVideoPrompt, &kb)
}

func (r *Router) onVideoPrompt(ctx context.Context, req *request) error {
	prompt, err := r.svc.Prompts.Prepare(ctx, messageText(req.msg), false)
	if err != nil {
		return err
	}
	req.session.Set(fsm.KeyPrompt, prompt)
	req.session.State = fsm.VideoConfirm
	cost := r.svc.Video.Cost()
	kb := r.bot.CreateVideoConfirmKeyboard(cost)
	return r.send(req, fmt.Sprintf("📝 Промпт: %s\n\nВидео стоит %d 🍪, ваш баланс: %d 🍪.", prompt, cost, req.user.Balance), &kb)
}

func (r *Router) onVideoConfirmText(_ context.Context, req *request) error {
	kb := r.bot.CreateVideoConfirmKeyboard(r.svc.Video.Cost())
	return r.send(req, "Подтвердите создание видео или отмените.", &kb)
}

func (r *Router) onVideoConfirm(ctx context.Context, req *request) error {
	if req.session.State != fsm.VideoConfirm {
		return r.send(req, textStale, nil)
	}
	if _, err := r.svc.Video.Generate(ctx, service.VideoRequest{
		UserID:      req.userID(),
		ChatID:      req.chatID,
		ImageFileID: req.session.Get(fsm.KeyImageFileID),
		Prompt:      req.session.Get(fsm.KeyPrompt),
	}); err != nil {
		return err
	}
	req.session = fsm.NewSession()
	return r.send(req, textVideoStart, nil)
}
