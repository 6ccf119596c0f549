package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
	"golang.org/x/text/unicode/norm"
)

// conversation accumulates the reply to one incoming message.
type conversation struct {
	s      *Service
	device string
	text   string
	lang   string
	parts  []string
}

func (c *conversation) add(text string) {
	if text != "" {
		c.parts = append(c.parts, text)
	}
}

// flush sends everything collected so far as one message.
func (c *conversation) flush(ctx context.Context, commands ...string) {
	if len(c.parts) == 0 {
		return
	}
	c.s.send(ctx, c.device, strings.Join(c.parts, "\n\n"), commands...)
	c.parts = nil
}

// Respond handles one chat message from deviceAddress. An empty text is a
// pairing: the first contact of a new peer. When handling fails the user is
// told so in their language and the error is returned for logging.
func (s *Service) Respond(ctx context.Context, deviceAddress, text string) error {
	s.metrics.Message("in")
	if err := s.respond(ctx, deviceAddress, strings.TrimSpace(text)); err != nil {
		s.send(ctx, deviceAddress, s.texts.T(s.userLang(ctx, deviceAddress), i18n.SomethingWentWrong))
		return err
	}
	return nil
}

func (s *Service) respond(ctx context.Context, deviceAddress, text string) error {
	user, err := s.repo.GetOrCreateUser(ctx, deviceAddress)
	if err != nil {
		return err
	}
	c := &conversation{s: s, device: deviceAddress, text: text, lang: user.Lang}

	userAddress := user.UserAddress
	if s.ledger.ValidAddress(text) {
		if err := s.repo.SetUserAddress(ctx, deviceAddress, &text); err != nil {
			return err
		}
		userAddress = &text
		c.add(s.texts.T(c.lang, i18n.GoingToAttestAddress, text))
	}

	if s.texts.Multilingual() {
		if lang, ok := strings.CutPrefix(text, cmdSelectLanguage+" "); ok && s.texts.Supports(lang) {
			if err := s.repo.SetUserLang(ctx, deviceAddress, lang); err != nil {
				return err
			}
			c.lang = lang
			s.send(ctx, deviceAddress, s.texts.T(lang, i18n.BackToLanguageSelection)+"\n\n"+s.greeting(lang))
		}
		if !s.texts.Supports(c.lang) || text == cmdSelectLanguage {
			s.sendLanguageMenu(ctx, c)
			return nil
		}
	}
	if text == "" {
		s.send(ctx, deviceAddress, s.greeting(c.lang))
	}

	if userAddress == nil {
		c.add(s.texts.T(c.lang, i18n.InsertMyAddress))
		c.flush(ctx)
		return nil
	}

	userEmail := user.UserEmail
	if email, ok := normalizeEmail(text); ok {
		if err := s.repo.SetUserEmail(ctx, deviceAddress, email); err != nil {
			return err
		}
		userEmail = &email
		c.add(s.texts.T(c.lang, i18n.GoingToAttestEmail, email))
		if s.rewardsEnabled() {
			if s.QualifiesForReward(email) {
				c.add(s.texts.T(c.lang, i18n.WhitelistedEmailForReward))
			} else {
				c.add(s.texts.T(c.lang, i18n.NotWhitelistedEmailForReward))
			}
		}
	}
	if userEmail == nil {
		c.add(s.texts.T(c.lang, i18n.InsertMyEmail))
		c.flush(ctx)
		return nil
	}

	ra, err := s.readOrAssignReceivingAddress(ctx, deviceAddress, *userAddress, *userEmail)
	if err != nil {
		return err
	}

	if text == cmdPrivate || text == cmdPublic {
		public := text == cmdPublic
		if err := s.setPrivacy(ctx, ra, public); err != nil {
			return err
		}
		if public {
			c.add(s.texts.T(c.lang, i18n.PublicChosen, ra.UserEmail))
		} else {
			c.add(s.texts.T(c.lang, i18n.PrivateChosen))
		}
	}
	if ra.PostPublicly == nil {
		c.add(s.texts.T(c.lang, i18n.PrivateOrPublic))
		c.flush(ctx, cmdPrivate, cmdPublic)
		return nil
	}

	if text == cmdAgain {
		c.add(s.pleasePay(c.lang, ra) + "\n\n" + s.privacyNote(c.lang, ra))
		c.flush(ctx)
		return nil
	}

	tx, err := s.repo.LatestTransaction(ctx, ra.ReceivingAddress)
	if err != nil {
		return err
	}

	switch {
	case tx == nil:
		c.add(s.pleasePay(c.lang, ra))
		c.flush(ctx)
		return nil
	case tx.State == models.StatePaymentReceived:
		c.add(s.texts.T(c.lang, i18n.ReceivedYourPayment, utils.FormatBTC(tx.ReceivedAmount)))
		c.flush(ctx)
		return nil
	case tx.State.CodePending():
		switch text {
		case cmdSendEmailAgain:
			c.flush(ctx)
			return s.resendEmail(ctx, c, tx.TransactionID)
		case cmdPrivate, cmdPublic:
			c.flush(ctx)
			return nil
		}
		return s.checkCode(ctx, c, ra, tx.TransactionID)
	default:
		return s.finalReply(ctx, c, tx)
	}
}

func (s *Service) greeting(lang string) string {
	text := s.texts.T(lang, i18n.Greeting, utils.FormatBTC(s.cfg.PriceSatoshi))
	if s.rewardsEnabled() {
		text += "\n\n" + s.texts.T(lang, i18n.WhitelistedReward, s.whitelistedDomains(), formatUSD(s.cfg.RewardUSD))
	}
	return text
}

func (s *Service) sendLanguageMenu(ctx context.Context, c *conversation) {
	langs := s.texts.Languages()
	commands := make([]string, 0, len(langs))
	names := make([]string, 0, len(langs))
	for _, lang := range langs {
		commands = append(commands, cmdSelectLanguage+" "+lang)
		names = append(names, lang+": "+s.texts.Name(lang))
	}
	c.add(s.texts.T(c.lang, i18n.SelectLanguage) + "\n" + strings.Join(names, "\n"))
	c.flush(ctx, commands...)
}

func (s *Service) pleasePay(lang string, ra *models.ReceivingAddress) string {
	return s.texts.T(lang, i18n.PleasePay, ra.ReceivingAddress, utils.FormatBTC(ra.Price), paymentURI(ra.ReceivingAddress, ra.Price))
}

func (s *Service) privacyNote(lang string, ra *models.ReceivingAddress) string {
	if ra.PostPublicly != nil && *ra.PostPublicly {
		return s.texts.T(lang, i18n.PublicChosen, ra.UserEmail)
	}
	return s.texts.T(lang, i18n.PrivateChosen)
}

// readOrAssignReceivingAddress returns the address quoted for this device,
// user address and email, minting the next one on first use.
func (s *Service) readOrAssignReceivingAddress(ctx context.Context, deviceAddress, userAddress, userEmail string) (*models.ReceivingAddress, error) {
	unlock, err := s.locks.Lock(ctx, deviceLock(deviceAddress))
	if err != nil {
		return nil, err
	}
	defer unlock()

	ra, err := s.repo.GetReceivingAddress(ctx, deviceAddress, userAddress, userEmail)
	if err != nil || ra != nil {
		return ra, err
	}

	unlockIndex, err := s.locks.Lock(ctx, addressIndexLock)
	if err != nil {
		return nil, err
	}
	defer unlockIndex()

	index, err := s.repo.NextAddressIndex(ctx)
	if err != nil {
		return nil, err
	}
	address, err := s.ledger.IssueAddress(ctx, receivingBranch, index)
	if err != nil {
		return nil, err
	}

	ra = &models.ReceivingAddress{
		ReceivingAddress: address,
		AddressIndex:     index,
		DeviceAddress:    deviceAddress,
		UserAddress:      userAddress,
		UserEmail:        userEmail,
		Price:            s.cfg.PriceSatoshi,
		LastPriceDate:    s.now(),
	}
	if err := s.repo.CreateReceivingAddress(ctx, ra); err != nil {
		return nil, err
	}
	s.logger.Infof("Issued receiving address %s (#%d) to device %s", address, index, deviceAddress)
	return ra, nil
}

func (s *Service) setPrivacy(ctx context.Context, ra *models.ReceivingAddress, public bool) error {
	unlock, err := s.locks.Lock(ctx, deviceLock(ra.DeviceAddress))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.SetPostPublicly(ctx, ra.ReceivingAddress, public); err != nil {
		return err
	}
	ra.PostPublicly = &public
	return nil
}

// normalizeEmail lowercases and NFKC-normalizes text and accepts it only if
// it is a bare address with a dotted domain.
func normalizeEmail(text string) (string, bool) {
	if text == "" || strings.ContainsAny(text, " <>\"") {
		return "", false
	}
	email := norm.NFKC.String(strings.ToLower(text))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	return email, true
}
