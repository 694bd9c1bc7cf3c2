// Package model содержит доменные сущности сервиса крафтмаркет.
package model

import "time"

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleUser    Role = "user"
	RoleArtisan Role = "artisan"
	RoleAdmin   Role = "admin"
)

// User представляет зарегистрированного пользователя маркетплейса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Wallet представляет кошелёк пользователя. Баланс хранится в копейках
// и изменяется только через операцию корректировки в репозитории.
type Wallet struct {
	ID        int64
	UserID    int64
	Balance   int64
	IsActive  bool
	CreatedAt time.Time
}

// TransactionKind описывает тип операции по кошельку.
type TransactionKind string

const (
	TransactionKindDeposit         TransactionKind = "deposit"
	TransactionKindWithdrawal      TransactionKind = "withdrawal"
	TransactionKindPaymentSent     TransactionKind = "payment_sent"
	TransactionKindPaymentReceived TransactionKind = "payment_received"
	TransactionKindCommission      TransactionKind = "commission"
	TransactionKindManualDeposit   TransactionKind = "manual_deposit"
)

// TransactionStatus описывает статус операции по кошельку.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction описывает запись журнала операций по кошельку.
// Записи только добавляются; одна запись соответствует ровно одному
// изменению баланса, применённому ровно один раз.
type Transaction struct {
	ID          int64
	WalletID    int64
	Amount      int64
	Kind        TransactionKind
	Status      TransactionStatus
	Description string
	AuctionID   *int64
	CreatedAt   time.Time
}

// AuctionStatus описывает статус аукциона.
type AuctionStatus string

const (
	AuctionStatusPending AuctionStatus = "pending"
	AuctionStatusActive  AuctionStatus = "active"
	AuctionStatusEnded   AuctionStatus = "ended"
)

// Auction описывает аукцион на товар мастера. Цена монотонно не убывает,
// время окончания может только отодвигаться вперёд.
type Auction struct {
	ID           int64
	SellerID     int64
	ProductName  string
	ReservePrice int64
	Price        *int64
	BidIncrement int64
	BidCount     int
	AntiSniping  bool
	StartDate    time.Time
	EndDate      time.Time
	Status       AuctionStatus
	WinnerID     *int64
	Type         string
	IsVisible    bool
	IsSettled    bool
	CreatedAt    time.Time
}

// CurrentPrice возвращает текущую цену аукциона: последнюю принятую ставку
// или стартовую цену, если ставок ещё не было.
func (a *Auction) CurrentPrice() int64 {
	if a.Price != nil {
		return *a.Price
	}
	return a.ReservePrice
}

// Bid описывает ставку участника аукциона. Запись неизменяема после создания,
// кроме флага IsWinning, который снимается при появлении более высокой ставки.
type Bid struct {
	ID        int64
	AuctionID int64
	UserID    int64
	Amount    int64
	IsWinning bool
	IPAddress string
	CreatedAt time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
)

// WithdrawalRequest описывает заявку пользователя на вывод средств с кошелька.
// Статус меняется только через переходы, допустимые CanTransitionWithdrawal.
type WithdrawalRequest struct {
	ID             int64
	UserID         int64
	WalletID       int64
	Amount         int64
	Status         WithdrawalStatus
	PaymentDetails string
	AdminNotes     string
	RequestedAt    time.Time
	ProcessedAt    *time.Time
}

// Balance содержит баланс кошелька и сумму всех выводов для выдачи в API.
type Balance struct {
	Current   float64 `json:"current"`
	Withdrawn float64 `json:"withdrawn"`
}
