package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fi44er/email_attestation_bot/config"
	"github.com/Fi44er/email_attestation_bot/internal/attestation"
	"github.com/Fi44er/email_attestation_bot/internal/i18n"
	"github.com/Fi44er/email_attestation_bot/internal/keylock"
	"github.com/Fi44er/email_attestation_bot/internal/ledger"
	"github.com/Fi44er/email_attestation_bot/internal/mailer"
	"github.com/Fi44er/email_attestation_bot/internal/metrics"
	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
)

// ErrIntegrity means stored data contradicts itself. It is reported to the
// operator and never repaired automatically.
var ErrIntegrity = errors.New("data integrity violation")

type Repository interface {
	GetOrCreateUser(ctx context.Context, deviceAddress string) (*models.User, error)
	SetUserAddress(ctx context.Context, deviceAddress string, userAddress *string) error
	SetUserEmail(ctx context.Context, deviceAddress, email string) error
	SetUserLang(ctx context.Context, deviceAddress, lang string) error
	GetUserLang(ctx context.Context, deviceAddress string) (string, error)

	GetReceivingAddress(ctx context.Context, deviceAddress, userAddress, userEmail string) (*models.ReceivingAddress, error)
	GetReceivingAddressByAddress(ctx context.Context, address string) (*models.ReceivingAddress, error)
	NextAddressIndex(ctx context.Context) (uint32, error)
	CreateReceivingAddress(ctx context.Context, ra *models.ReceivingAddress) error
	SetPostPublicly(ctx context.Context, receivingAddress string, public bool) error
	SweepCandidates(ctx context.Context, limit int) ([]string, error)
	StalledPayments(ctx context.Context) ([]models.Transaction, error)
	MarkSwept(ctx context.Context, addresses []string) error

	GetTransaction(ctx context.Context, txID uint) (*models.Transaction, error)
	GetTransactionByPayment(ctx context.Context, receivingAddress, paymentUnit string) (*models.Transaction, error)
	LatestTransaction(ctx context.Context, receivingAddress string) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) (bool, error)
	CreateRejectedPayment(ctx context.Context, p *models.RejectedPayment) (bool, error)

	ConfirmPayment(ctx context.Context, txID uint, from, to models.TxState, email *models.VerificationEmail) error
	MarkEmailSent(ctx context.Context, txID uint, from, to models.TxState) error
	ResetEmailSent(ctx context.Context, txID uint, from, to models.TxState) error
	RecordCodeMatch(ctx context.Context, txID uint, from, to models.TxState, attestation *models.AttestationUnit) error
	RecordCodeMismatch(ctx context.Context, txID uint, from, to models.TxState, attempts int) error

	GetVerificationEmail(ctx context.Context, txID uint) (*models.VerificationEmail, error)
	UnsentVerificationEmails(ctx context.Context) ([]models.VerificationEmail, error)

	GetAttestation(ctx context.Context, txID uint) (*models.AttestationUnit, error)
	MarkAttestationPosted(ctx context.Context, txID uint, unit string) (bool, error)
	UnpostedAttestations(ctx context.Context) ([]uint, error)
	PostedAttestationsByAddresses(ctx context.Context, addresses []string, excludePaymentUnit string) ([]models.PostedAttestation, error)

	CreateReward(ctx context.Context, reward *models.RewardUnit) (bool, error)
	CreateReferralReward(ctx context.Context, reward *models.ReferralRewardUnit) (bool, error)
	GetRewardDispatch(ctx context.Context, kind models.RewardKind, txID uint) (*models.RewardDispatch, error)
	MarkRewardSent(ctx context.Context, kind models.RewardKind, txID uint, unit string) (bool, error)
	UnpaidRewards(ctx context.Context, kind models.RewardKind) ([]uint, error)
}

type Ledger interface {
	ValidAddress(address string) bool
	IssueAddress(ctx context.Context, branch, index uint32) (string, error)
	Syncing(ctx context.Context) (bool, error)
	Balance(ctx context.Context, address string) (int64, error)
	Confirmations(ctx context.Context, unit string) (int64, error)
	Authors(ctx context.Context, unit string) ([]string, error)
	InputSources(ctx context.Context, units []string) ([]ledger.InputSource, error)
	PostAttestation(ctx context.Context, from, payload string) (string, error)
	SendPayment(ctx context.Context, from, to string, amount int64) (string, error)
	SweepAll(ctx context.Context, from []string, to string) (string, error)
}

// Reply is one outgoing chat message. Commands are offered as quick replies.
type Reply struct {
	Text     string
	Commands []string
}

type Messenger interface {
	Send(ctx context.Context, deviceAddress string, reply Reply) error
}

type Mailer interface {
	SendMail(ctx context.Context, m mailer.Mail) error
}

type Rates interface {
	ToNative(usd float64) (int64, error)
}

type Config struct {
	AttestorAddress     string
	DistributionAddress string
	PriceSatoshi        int64
	RewardUSD           float64
	ReferralRewardUSD   float64
	Whitelist           []config.WhitelistEntry
	MaxReferralDepth    int
	MaxAttempts         int
	CodeLength          int
	Salt                string
	DeviceName          string
	ExplorerURL         string
	MaxSweepAddresses   int
	StableConfirmations int64
}

type Dependencies struct {
	Repo      Repository
	Ledger    Ledger
	Messenger Messenger
	Mailer    Mailer
	Notifier  mailer.Notifier
	Rates     Rates
	Texts     *i18n.Catalog
	Metrics   *metrics.Metrics
	Logger    *utils.Logger
}

type Service struct {
	cfg       Config
	repo      Repository
	ledger    Ledger
	messenger Messenger
	mailer    Mailer
	notifier  mailer.Notifier
	rates     Rates
	texts     *i18n.Catalog
	payloads  *attestation.Builder
	locks     *keylock.Locker
	metrics   *metrics.Metrics
	logger    *utils.Logger
	now       func() time.Time
}

func NewService(cfg Config, deps Dependencies) (*Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("service: repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("service: ledger is required")
	case deps.Messenger == nil:
		return nil, errors.New("service: messenger is required")
	case deps.Mailer == nil:
		return nil, errors.New("service: mailer is required")
	case deps.Notifier == nil:
		return nil, errors.New("service: notifier is required")
	case deps.Rates == nil:
		return nil, errors.New("service: rates are required")
	}
	if cfg.Salt == "" {
		return nil, errors.New("service: salt is required")
	}
	if cfg.AttestorAddress == "" || cfg.DistributionAddress == "" {
		return nil, errors.New("service: attestor and distribution addresses are required")
	}
	if cfg.MaxAttempts <= 0 || cfg.CodeLength <= 0 || cfg.PriceSatoshi <= 0 {
		return nil, fmt.Errorf("service: invalid limits: attempts %d, code length %d, price %d",
			cfg.MaxAttempts, cfg.CodeLength, cfg.PriceSatoshi)
	}

	texts := deps.Texts
	if texts == nil {
		texts = i18n.New(i18n.DefaultLanguage)
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &Service{
		cfg:       cfg,
		repo:      deps.Repo,
		ledger:    deps.Ledger,
		messenger: deps.Messenger,
		mailer:    deps.Mailer,
		notifier:  deps.Notifier,
		rates:     deps.Rates,
		texts:     texts,
		payloads:  attestation.NewBuilder(cfg.Salt),
		locks:     keylock.New(),
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

const (
	addressIndexLock = "receiving-address-index"
	sweepLock        = "move-funds-to-attestor"
)

func deviceLock(deviceAddress string) string {
	return "device-" + deviceAddress
}

func txLock(txID uint) string {
	return fmt.Sprintf("tx-%d", txID)
}

// send delivers a chat message. Delivery failures are logged only: the chat
// is best effort and never rolls back recorded progress.
func (s *Service) send(ctx context.Context, deviceAddress string, text string, commands ...string) {
	if err := s.messenger.Send(ctx, deviceAddress, Reply{Text: text, Commands: commands}); err != nil {
		s.logger.Errorf("Failed to send message to %s: %v", deviceAddress, err)
		return
	}
	s.metrics.Message("out")
}

func (s *Service) userLang(ctx context.Context, deviceAddress string) string {
	lang, err := s.repo.GetUserLang(ctx, deviceAddress)
	if err != nil {
		s.logger.Warnf("Failed to get language of %s: %v", deviceAddress, err)
		return models.LangUnknown
	}
	return lang
}

// notifyAdmin alerts the operator. Alert failures are logged, never returned.
func (s *Service) notifyAdmin(ctx context.Context, subject, body string) {
	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		s.logger.Errorf("Failed to notify admin about %q: %v", subject, err)
	}
}

// escalate reports a failed ledger operation together with the balance of
// the address that was supposed to pay for it.
func (s *Service) escalate(ctx context.Context, subject string, cause error, address string) {
	body := fmt.Sprintf("%v", cause)
	if balance, err := s.ledger.Balance(ctx, address); err != nil {
		body += fmt.Sprintf("\nbalance of %s is unknown: %v", address, err)
	} else {
		body += fmt.Sprintf("\nbalance of %s: %s BTC", address, utils.FormatBTC(balance))
	}
	s.notifyAdmin(ctx, subject, body)
}

func (s *Service) rewardsEnabled() bool {
	return s.cfg.RewardUSD > 0 && len(s.cfg.Whitelist) > 0
}

func (s *Service) referralsEnabled() bool {
	return s.rewardsEnabled() && s.cfg.ReferralRewardUSD > 0
}

// QualifiesForReward reports whether email matches a whitelisted domain pattern.
func (s *Service) QualifiesForReward(email string) bool {
	for _, entry := range s.cfg.Whitelist {
		if entry.Pattern.MatchString(email) {
			return true
		}
	}
	return false
}

func (s *Service) whitelistedDomains() string {
	domains := make([]string, 0, len(s.cfg.Whitelist))
	for _, entry := range s.cfg.Whitelist {
		domains = append(domains, entry.Domain)
	}
	return strings.Join(domains, ",\n")
}

func formatUSD(usd float64) string {
	return fmt.Sprintf("%.2f", usd)
}

func paymentURI(address string, amount int64) string {
	return fmt.Sprintf("bitcoin:%s?amount=%s", address, utils.FormatBTC(amount))
}
