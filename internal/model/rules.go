package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAuctionNotActive возвращается при ставке на аукцион, который не идёт.
var (
	ErrAuctionNotActive = errors.New("auction is not active")
	// ErrAuctionEnded возвращается при ставке после времени окончания аукциона.
	ErrAuctionEnded = errors.New("auction already ended")
	// ErrBidTooLow возвращается, если ставка не превышает текущую цену.
	ErrBidTooLow = errors.New("bid must be greater than current price")
	// ErrBidIncrementTooSmall возвращается, если шаг ставки меньше минимального.
	ErrBidIncrementTooSmall = errors.New("bid increment is too small")
	// ErrInvalidWithdrawalState возвращается при недопустимом переходе статуса заявки на вывод.
	ErrInvalidWithdrawalState = errors.New("invalid withdrawal state transition")
)

// ValidateBid проверяет допустимость ставки относительно текущего состояния
// аукциона. Порядок проверок — от самой общей к самой специфичной, чтобы
// клиент получал точную причину отказа. Вызывается внутри транзакции под
// блокировкой строки аукциона, поэтому текущая цена не может устареть.
func ValidateBid(a *Auction, amountCents int64, now time.Time) error {
	if a.Status != AuctionStatusActive {
		return ErrAuctionNotActive
	}
	if now.After(a.EndDate) {
		return ErrAuctionEnded
	}

	current := a.CurrentPrice()
	if amountCents <= current {
		return ErrBidTooLow
	}
	if amountCents-current < a.BidIncrement {
		return ErrBidIncrementTooSmall
	}

	return nil
}

// ExtendedEndDate возвращает время окончания аукциона после принятия ставки.
// Если включено продление и до конца осталось не больше окна, окончание
// отодвигается на окно вперёд. Результат никогда не раньше текущего EndDate.
func ExtendedEndDate(a *Auction, now time.Time, window time.Duration) time.Time {
	if !a.AntiSniping {
		return a.EndDate
	}
	if a.EndDate.Sub(now) > window {
		return a.EndDate
	}
	return a.EndDate.Add(window)
}

// PaymentSplit содержит разбивку платежа по завершённому аукциону в копейках.
type PaymentSplit struct {
	Price          int64
	Commission     int64
	SellerEarnings int64
}

// SplitPayment вычисляет комиссию площадки и выручку продавца от финальной
// цены аукциона. Комиссия округляется до копейки, выручка — остаток, поэтому
// сумма выручки и комиссии всегда равна цене.
func SplitPayment(priceCents int64, commissionRatePercent int64) PaymentSplit {
	commission := decimal.NewFromInt(priceCents).
		Mul(decimal.NewFromInt(commissionRatePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	return PaymentSplit{
		Price:          priceCents,
		Commission:     commission,
		SellerEarnings: priceCents - commission,
	}
}

// CanTransitionWithdrawal проверяет допустимость перехода заявки на вывод
// средств из статуса from в статус to.
func CanTransitionWithdrawal(from, to WithdrawalStatus) bool {
	switch to {
	case WithdrawalStatusApproved, WithdrawalStatusRejected:
		return from == WithdrawalStatusPending
	case WithdrawalStatusProcessing, WithdrawalStatusFailed:
		return from == WithdrawalStatusApproved
	case WithdrawalStatusCompleted:
		return from == WithdrawalStatusProcessing || from == WithdrawalStatusApproved
	default:
		return false
	}
}

// ToCents переводит сумму в рублях в копейки без потери точности.
func ToCents(sum float64) int64 {
	return decimal.NewFromFloat(sum).
		Mul(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// FromCents переводит копейки в рубли для выдачи в API.
func FromCents(cents int64) float64 {
	f, _ := decimal.NewFromInt(cents).
		Div(decimal.NewFromInt(100)).
		Float64()
	return f
}
