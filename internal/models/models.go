package models

import "time"

const LangUnknown = "unknown"

// User is a chat peer. Created on first contact, never deleted.
type User struct {
	DeviceAddress string    `gorm:"primaryKey" json:"device_address"`
	UserAddress   *string   `json:"user_address"`
	UserEmail     *string   `json:"user_email"`
	Lang          string    `gorm:"default:unknown;not null" json:"lang"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReceivingAddress is minted once per (device, user address, user email).
// PostPublicly: nil means undecided.
type ReceivingAddress struct {
	ReceivingAddress string    `gorm:"primaryKey" json:"receiving_address"`
	AddressIndex     uint32    `gorm:"uniqueIndex;not null" json:"address_index"`
	DeviceAddress    string    `gorm:"uniqueIndex:idx_receiving_owner,priority:1;not null" json:"device_address"`
	UserAddress      string    `gorm:"uniqueIndex:idx_receiving_owner,priority:2;not null" json:"user_address"`
	UserEmail        string    `gorm:"uniqueIndex:idx_receiving_owner,priority:3;not null" json:"user_email"`
	Price            int64     `gorm:"not null" json:"price"`
	LastPriceDate    time.Time `json:"last_price_date"`
	PostPublicly     *bool     `json:"post_publicly"`
	CreatedAt        time.Time `json:"created_at"`
}

type Transaction struct {
	TransactionID    uint       `gorm:"primaryKey;autoIncrement" json:"transaction_id"`
	ReceivingAddress string     `gorm:"uniqueIndex:idx_tx_payment,priority:1;not null" json:"receiving_address"`
	PaymentUnit      string     `gorm:"uniqueIndex:idx_tx_payment,priority:2;index;not null" json:"payment_unit"`
	Price            int64      `json:"price"`
	ReceivedAmount   int64      `json:"received_amount"`
	State            TxState    `gorm:"type:varchar(32);index;not null" json:"state"`
	IsConfirmed      bool       `gorm:"default:false" json:"is_confirmed"`
	ConfirmationDate *time.Time `json:"confirmation_date"`
	IsSwept          bool       `gorm:"default:false" json:"is_swept"`
	CreatedAt        time.Time  `json:"created_at"`
}

// VerificationEmail is terminal once Result is set (false: failed, true: success).
type VerificationEmail struct {
	TransactionID    uint       `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	UserEmail        string     `gorm:"not null" json:"user_email"`
	Code             string     `gorm:"not null" json:"-"`
	IsSent           bool       `gorm:"default:false" json:"is_sent"`
	Result           *bool      `json:"result"`
	ResultDate       *time.Time `json:"result_date"`
	NumberOfAttempts int        `gorm:"default:0" json:"number_of_attempts"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AttestationUnit keeps the payload to post; AttestationUnit stays nil until posting succeeds.
type AttestationUnit struct {
	TransactionID   uint       `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	Address         string     `gorm:"index;not null" json:"address"`
	Payload         string     `gorm:"type:text;not null" json:"payload"`
	SrcProfile      *string    `gorm:"type:text" json:"-"`
	AttestationUnit *string    `gorm:"index" json:"attestation_unit"`
	AttestationDate *time.Time `json:"attestation_date"`
	CreatedAt       time.Time  `json:"created_at"`
}

type RewardUnit struct {
	TransactionID uint       `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	DeviceAddress string     `gorm:"uniqueIndex;not null" json:"device_address"`
	UserAddress   string     `gorm:"uniqueIndex;not null" json:"user_address"`
	UserEmail     string     `gorm:"not null" json:"user_email"`
	UserID        string     `gorm:"uniqueIndex;not null" json:"user_id"`
	Reward        int64      `gorm:"not null" json:"reward"`
	RewardUnit    *string    `json:"reward_unit"`
	RewardDate    *time.Time `json:"reward_date"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ReferralRewardUnit pays UserAddress (the referrer, reachable at DeviceAddress)
// for bringing in NewUserAddress.
type ReferralRewardUnit struct {
	TransactionID  uint       `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	DeviceAddress  string     `gorm:"not null" json:"device_address"`
	UserAddress    string     `gorm:"index;not null" json:"user_address"`
	UserID         string     `gorm:"not null" json:"user_id"`
	NewUserAddress string     `gorm:"uniqueIndex;not null" json:"new_user_address"`
	NewUserID      string     `gorm:"uniqueIndex;not null" json:"new_user_id"`
	Reward         int64      `gorm:"not null" json:"reward"`
	RewardUnit     *string    `json:"reward_unit"`
	RewardDate     *time.Time `json:"reward_date"`
	CreatedAt      time.Time  `json:"created_at"`
}

type RejectedPayment struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ReceivingAddress string    `gorm:"uniqueIndex:idx_rejected_payment,priority:1;not null" json:"receiving_address"`
	PaymentUnit      string    `gorm:"uniqueIndex:idx_rejected_payment,priority:2;not null" json:"payment_unit"`
	Price            int64     `json:"price"`
	ReceivedAmount   int64     `json:"received_amount"`
	Error            string    `gorm:"type:text" json:"error"`
	CreatedAt        time.Time `json:"created_at"`
}

type RewardKind string

const (
	RewardAttestation RewardKind = "attestation"
	RewardReferral    RewardKind = "referral"
)

// RewardDispatch is what reward payment needs from either reward table.
type RewardDispatch struct {
	TransactionID uint
	DeviceAddress string
	UserAddress   string
	Reward        int64
	RewardDate    *time.Time
}

// PostedAttestation is a posted attestation joined with the payer it belongs to.
type PostedAttestation struct {
	TransactionID   uint
	Address         string
	UserAddress     string
	DeviceAddress   string
	Payload         string
	AttestationUnit string
}

// AllModels lists everything AutoMigrate has to create.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&ReceivingAddress{},
		&Transaction{},
		&VerificationEmail{},
		&AttestationUnit{},
		&RewardUnit{},
		&ReferralRewardUnit{},
		&RejectedPayment{},
	}
}
