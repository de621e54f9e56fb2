package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the recurrence cadence of a Bill.
type Frequency string

const (
	FrequencyOnce      Frequency = "ONCE"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// BillStatus is the display status of a Bill.
type BillStatus string

const (
	BillStatusActive    BillStatus = "ACTIVE"
	BillStatusDue       BillStatus = "DUE"
	BillStatusPartial   BillStatus = "PARTIAL"
	BillStatusPaid      BillStatus = "PAID"
	BillStatusLate      BillStatus = "LATE"
	BillStatusCancelled BillStatus = "CANCELLED"
)

type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
)

type TransactionType string

const (
	TxDeposit     TransactionType = "DEPOSIT"
	TxWithdrawal  TransactionType = "WITHDRAWAL"
	TxTransferIn  TransactionType = "TRANSFER_IN"
	TxTransferOut TransactionType = "TRANSFER_OUT"
	TxPurchase    TransactionType = "PURCHASE"
)

// IsCredit reports whether rows of this type add to the account balance.
func (t TransactionType) IsCredit() bool {
	return t == TxDeposit || t == TxTransferIn
}

// Bill is a one-time or recurring charge assigned to one or more classes.
// Bills are never hard-deleted; cancellation moves them to CANCELLED.
type Bill struct {
	BaseModel
	Title              string          `json:"title" gorm:"size:255;not null"`
	Description        string          `json:"description" gorm:"type:text"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	DueDate            time.Time       `json:"due_date" gorm:"not null;index"`
	Frequency          Frequency       `json:"frequency" gorm:"size:20;not null;default:'ONCE'"`
	Status             BillStatus      `json:"status" gorm:"size:20;not null;default:'ACTIVE';index"`
	CancellationReason string          `json:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedByID        uint            `json:"created_by_id" gorm:"not null;index"`
	ParentBillID       *uint           `json:"parent_bill_id,omitempty" gorm:"index"`

	Classes []Class `json:"classes,omitempty" gorm:"many2many:bill_classes;"`
}

// StudentBill is the per-student payment record against a Bill, created on first payment.
type StudentBill struct {
	BaseModel
	BillID     uint            `json:"bill_id" gorm:"not null;uniqueIndex:idx_student_bill"`
	StudentID  uint            `json:"student_id" gorm:"not null;uniqueIndex:idx_student_bill;index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaidAmount decimal.Decimal `json:"paid_amount" gorm:"type:decimal(12,2);not null;default:0"`
	IsPaid     bool            `json:"is_paid" gorm:"not null;default:false"`
	PaidAt     *time.Time      `json:"paid_at"`
}

// Remaining returns the unpaid part of the bill for this student.
func (sb StudentBill) Remaining() decimal.Decimal {
	return sb.Amount.Sub(sb.PaidAmount)
}

// BankAccount belongs to exactly one student. Balance never goes below zero:
// every debit is a conditional update on balance >= amount.
type BankAccount struct {
	BaseModel
	StudentID     uint            `json:"student_id" gorm:"not null;uniqueIndex:idx_student_account_type"`
	AccountType   AccountType     `json:"account_type" gorm:"size:20;not null;uniqueIndex:idx_student_account_type"`
	AccountNumber string          `json:"account_number" gorm:"size:32;not null;uniqueIndex"`
	Balance       decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);not null;default:0"`
}

// Transaction is an immutable ledger row; one per balance mutation.
type Transaction struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	CreatedAt          time.Time       `json:"created_at" gorm:"index"`
	AccountID          uint            `json:"account_id" gorm:"not null;index"`
	ReceivingAccountID *uint           `json:"receiving_account_id,omitempty"`
	BillID             *uint           `json:"bill_id,omitempty" gorm:"index"`
	PurchaseID         *uint           `json:"purchase_id,omitempty"`
	TransactionType    TransactionType `json:"transaction_type" gorm:"size:20;not null"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Description        string          `json:"description" gorm:"size:255"`
}

// StoreItem is something students can buy from their class store.
// A nil Stock means unlimited.
type StoreItem struct {
	BaseModel
	ClassID     uint            `json:"class_id" gorm:"not null;index"`
	Name        string          `json:"name" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Stock       *int            `json:"stock"`
	Active      bool            `json:"active" gorm:"not null"`
}

type Purchase struct {
	BaseModel
	StoreItemID uint            `json:"store_item_id" gorm:"not null;index"`
	StudentID   uint            `json:"student_id" gorm:"not null;index"`
	AccountID   uint            `json:"account_id" gorm:"not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	Total       decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
}

// Statement is a generated monthly account statement stored in object storage.
type Statement struct {
	BaseModel
	AccountID        uint            `json:"account_id" gorm:"not null;uniqueIndex:idx_statement_period"`
	PeriodStart      time.Time       `json:"period_start" gorm:"not null;uniqueIndex:idx_statement_period"`
	PeriodEnd        time.Time       `json:"period_end" gorm:"not null"`
	OpeningBalance   decimal.Decimal `json:"opening_balance" gorm:"type:decimal(12,2);not null"`
	ClosingBalance   decimal.Decimal `json:"closing_balance" gorm:"type:decimal(12,2);not null"`
	TransactionCount int             `json:"transaction_count"`
	S3Key            string          `json:"-" gorm:"size:500"`
}
