package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return NewRepository(db, utils.NewNopLogger())
}

func strPtr(s string) *string { return &s }

func seedTransaction(t *testing.T, r *Repository, receiving, unit string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{ReceivingAddress: receiving, PaymentUnit: unit, Price: 1000, ReceivedAmount: 1000}
	created, err := r.CreateTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, created)
	return tx
}

func TestGetOrCreateUser(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	missing, err := r.GetUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user, err := r.GetOrCreateUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, models.LangUnknown, user.Lang)
	assert.Nil(t, user.UserAddress)

	require.NoError(t, r.SetUserAddress(ctx, "dev1", strPtr("addr1")))
	require.NoError(t, r.SetUserEmail(ctx, "dev1", "a@harvard.edu"))
	require.NoError(t, r.SetUserLang(ctx, "dev1", "ru"))

	again, err := r.GetOrCreateUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(t, "addr1", *again.UserAddress)
	assert.Equal(t, "a@harvard.edu", *again.UserEmail)
	assert.Equal(t, "ru", again.Lang)

	require.NoError(t, r.SetUserAddress(ctx, "dev1", nil))
	reset, err := r.GetUser(ctx, "dev1")
	require.NoError(t, err)
	assert.Nil(t, reset.UserAddress)

	assert.Error(t, r.SetUserLang(ctx, "nobody", "en"))
}

func TestReceivingAddressIssuance(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	next, err := r.NextAddressIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), next)

	ra := &models.ReceivingAddress{ReceivingAddress: "recv0", AddressIndex: next, DeviceAddress: "dev1", UserAddress: "addr1", UserEmail: "a@x.com", Price: 1000}
	require.NoError(t, r.CreateReceivingAddress(ctx, ra))

	next, err = r.NextAddressIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next)

	dup := &models.ReceivingAddress{ReceivingAddress: "recv1", AddressIndex: next, DeviceAddress: "dev1", UserAddress: "addr1", UserEmail: "a@x.com", Price: 1000}
	assert.Error(t, r.CreateReceivingAddress(ctx, dup), "one address per device, address and email")

	got, err := r.GetReceivingAddress(ctx, "dev1", "addr1", "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.PostPublicly)

	require.NoError(t, r.SetPostPublicly(ctx, "recv0", false))
	got, err = r.GetReceivingAddressByAddress(ctx, "recv0")
	require.NoError(t, err)
	require.NotNil(t, got.PostPublicly)
	assert.False(t, *got.PostPublicly)

	none, err := r.GetReceivingAddress(ctx, "dev1", "addr1", "b@x.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCreateTransactionIgnoresRepeatedPayment(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	first := seedTransaction(t, r, "recv0", "unit1")
	assert.Equal(t, models.StatePaymentReceived, first.State)

	created, err := r.CreateTransaction(ctx, &models.Transaction{ReceivingAddress: "recv0", PaymentUnit: "unit1"})
	require.NoError(t, err)
	assert.False(t, created)

	second := seedTransaction(t, r, "recv0", "unit2")
	latest, err := r.LatestTransaction(ctx, "recv0")
	require.NoError(t, err)
	assert.Equal(t, second.TransactionID, latest.TransactionID)

	byPayment, err := r.GetTransactionByPayment(ctx, "recv0", "unit1")
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, byPayment.TransactionID)

	stalled, err := r.StalledPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, stalled, 2)
}

func TestRejectedPaymentLoggedOnce(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	p := models.RejectedPayment{ReceivingAddress: "recv0", PaymentUnit: "unit1", Price: 10, ReceivedAmount: 5, Error: "less"}
	created, err := r.CreateRejectedPayment(ctx, &p)
	require.NoError(t, err)
	assert.True(t, created)

	p2 := p
	p2.ID = 0
	created, err = r.CreateRejectedPayment(ctx, &p2)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestVerificationLifecycle(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	tx := seedTransaction(t, r, "recv0", "unit1")

	ve := &models.VerificationEmail{TransactionID: tx.TransactionID, UserEmail: "a@x.com", Code: "ABCDEFGHIJ"}
	require.NoError(t, r.ConfirmPayment(ctx, tx.TransactionID, models.StatePaymentReceived, models.StateConfirmed, ve))

	err := r.ConfirmPayment(ctx, tx.TransactionID, models.StatePaymentReceived, models.StateConfirmed, ve)
	require.ErrorIs(t, err, ErrStaleState)

	got, err := r.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, got.State)
	assert.True(t, got.IsConfirmed)
	assert.NotNil(t, got.ConfirmationDate)

	unsent, err := r.UnsentVerificationEmails(ctx)
	require.NoError(t, err)
	require.Len(t, unsent, 1)

	require.NoError(t, r.MarkEmailSent(ctx, tx.TransactionID, models.StateConfirmed, models.StateAwaitingCode))
	unsent, err = r.UnsentVerificationEmails(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	require.NoError(t, r.RecordCodeMismatch(ctx, tx.TransactionID, models.StateAwaitingCode, models.StateAwaitingCode, 1))
	stored, err := r.GetVerificationEmail(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.NumberOfAttempts)
	assert.Nil(t, stored.Result)

	att := &models.AttestationUnit{TransactionID: tx.TransactionID, Address: "addr1", Payload: "{}"}
	require.NoError(t, r.RecordCodeMatch(ctx, tx.TransactionID, models.StateAwaitingCode, models.StateVerified, att))

	stored, err = r.GetVerificationEmail(ctx, tx.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.True(t, *stored.Result)

	got, err = r.GetTransaction(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateVerified, got.State)
}

func TestCodeMismatchFailureClosesVerification(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	tx := seedTransaction(t, r, "recv0", "unit1")

	ve := &models.VerificationEmail{TransactionID: tx.TransactionID, UserEmail: "a@x.com", Code: "C"}
	require.NoError(t, r.ConfirmPayment(ctx, tx.TransactionID, models.StatePaymentReceived, models.StateConfirmed, ve))
	require.NoError(t, r.RecordCodeMismatch(ctx, tx.TransactionID, models.StateConfirmed, models.StateFailed, 5))

	stored, err := r.GetVerificationEmail(ctx, tx.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.False(t, *stored.Result)
	assert.Equal(t, 5, stored.NumberOfAttempts)

	err = r.RecordCodeMismatch(ctx, tx.TransactionID, models.StateFailed, models.StateFailed, 6)
	assert.Error(t, err, "a closed verification cannot be failed twice")
	stored, err = r.GetVerificationEmail(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.NumberOfAttempts)
}

func TestResetEmailSent(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	tx := seedTransaction(t, r, "recv0", "unit1")

	ve := &models.VerificationEmail{TransactionID: tx.TransactionID, UserEmail: "a@x.com", Code: "C"}
	require.NoError(t, r.ConfirmPayment(ctx, tx.TransactionID, models.StatePaymentReceived, models.StateConfirmed, ve))
	require.NoError(t, r.MarkEmailSent(ctx, tx.TransactionID, models.StateConfirmed, models.StateAwaitingCode))
	require.NoError(t, r.ResetEmailSent(ctx, tx.TransactionID, models.StateAwaitingCode, models.StateConfirmed))

	stored, err := r.GetVerificationEmail(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.False(t, stored.IsSent)
	assert.Equal(t, "C", stored.Code)
}

func TestAttestationPostedOnce(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateReceivingAddress(ctx, &models.ReceivingAddress{ReceivingAddress: "recv0", DeviceAddress: "dev1", UserAddress: "addr1", UserEmail: "a@x.com", Price: 1}))
	tx := seedTransaction(t, r, "recv0", "unit1")
	require.NoError(t, r.ConfirmPayment(ctx, tx.TransactionID, models.StatePaymentReceived, models.StateConfirmed,
		&models.VerificationEmail{TransactionID: tx.TransactionID, UserEmail: "a@x.com", Code: "C"}))
	require.NoError(t, r.RecordCodeMatch(ctx, tx.TransactionID, models.StateConfirmed, models.StateVerified,
		&models.AttestationUnit{TransactionID: tx.TransactionID, Address: "addr1", Payload: `{"address":"addr1"}`}))

	unposted, err := r.UnpostedAttestations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{tx.TransactionID}, unposted)

	posted, err := r.MarkAttestationPosted(ctx, tx.TransactionID, "att1")
	require.NoError(t, err)
	assert.True(t, posted)

	posted, err = r.MarkAttestationPosted(ctx, tx.TransactionID, "att2")
	require.NoError(t, err)
	assert.False(t, posted)

	a, err := r.GetAttestation(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "att1", *a.AttestationUnit)

	rows, err := r.PostedAttestationsByAddresses(ctx, []string{"addr1", "addr9"}, "other")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "dev1", rows[0].DeviceAddress)
	assert.Equal(t, "addr1", rows[0].UserAddress)
	assert.Equal(t, "att1", rows[0].AttestationUnit)

	rows, err = r.PostedAttestationsByAddresses(ctx, []string{"addr1"}, "unit1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRewardUniqueness(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	created, err := r.CreateReward(ctx, &models.RewardUnit{TransactionID: 1, DeviceAddress: "dev1", UserAddress: "addr1", UserEmail: "a@harvard.edu", UserID: "uid", Reward: 100})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.CreateReward(ctx, &models.RewardUnit{TransactionID: 2, DeviceAddress: "dev2", UserAddress: "addr2", UserEmail: "a@harvard.edu", UserID: "uid", Reward: 100})
	require.NoError(t, err)
	assert.False(t, created, "same user id")

	created, err = r.CreateReferralReward(ctx, &models.ReferralRewardUnit{TransactionID: 1, DeviceAddress: "devR", UserAddress: "ref", UserID: "ruid", NewUserAddress: "addr1", NewUserID: "uid", Reward: 50})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.CreateReferralReward(ctx, &models.ReferralRewardUnit{TransactionID: 3, DeviceAddress: "devR", UserAddress: "ref", UserID: "ruid", NewUserAddress: "addr3", NewUserID: "uid", Reward: 50})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRewardDispatchPaidOnce(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	_, err := r.CreateReferralReward(ctx, &models.ReferralRewardUnit{TransactionID: 7, DeviceAddress: "devR", UserAddress: "ref", UserID: "ruid", NewUserAddress: "addr1", NewUserID: "uid", Reward: 50})
	require.NoError(t, err)

	d, err := r.GetRewardDispatch(ctx, models.RewardReferral, 7)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "devR", d.DeviceAddress)
	assert.Equal(t, "ref", d.UserAddress)
	assert.Equal(t, int64(50), d.Reward)
	assert.Nil(t, d.RewardDate)

	unpaid, err := r.UnpaidRewards(ctx, models.RewardReferral)
	require.NoError(t, err)
	assert.Equal(t, []uint{7}, unpaid)

	marked, err := r.MarkRewardSent(ctx, models.RewardReferral, 7, "pay1")
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = r.MarkRewardSent(ctx, models.RewardReferral, 7, "pay2")
	require.NoError(t, err)
	assert.False(t, marked)

	unpaid, err = r.UnpaidRewards(ctx, models.RewardReferral)
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	none, err := r.GetRewardDispatch(ctx, models.RewardAttestation, 7)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = r.UnpaidRewards(ctx, models.RewardKind("bogus"))
	assert.Error(t, err)
}

func TestSweepCandidates(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	a := seedTransaction(t, r, "recvA", "u1")
	seedTransaction(t, r, "recvB", "u2")
	require.NoError(t, r.ConfirmPayment(ctx, a.TransactionID, models.StatePaymentReceived, models.StateConfirmed,
		&models.VerificationEmail{TransactionID: a.TransactionID, UserEmail: "a@x.com", Code: "C"}))

	candidates, err := r.SweepCandidates(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, []string{"recvA"}, candidates)

	require.NoError(t, r.MarkSwept(ctx, candidates))
	candidates, err = r.SweepCandidates(ctx, 16)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
