// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// LoanIssuedEvent is published when a librarian accepts a borrow request
// and the copy is handed out.  It carries enough context for downstream
// consumers to log or notify without querying the primary database.
type LoanIssuedEvent struct {
	LoanSlug     string `json:"loan_slug"`
	RequestSlug  string `json:"request_slug"`
	BookSlug     string `json:"book_slug"`
	BookTitle    string `json:"book_title"`
	BorrowerSlug string `json:"borrower_slug"`
	IssuerSlug   string `json:"issuer_slug"`
	FromDate     string `json:"from_date"`
	ToDate       string `json:"to_date"`
	IssuedAt     string `json:"issued_at"`
}

// LoanReturnedEvent is published when a loan closes, whether the borrower
// returned the book, a librarian took it back or the overdue sweep revoked
// it.
type LoanReturnedEvent struct {
	LoanSlug     string `json:"loan_slug"`
	BookSlug     string `json:"book_slug"`
	BookTitle    string `json:"book_title"`
	BorrowerSlug string `json:"borrower_slug"`
	Reason       string `json:"reason"` // "borrower", "librarian" or "overdue"
	ReturnedAt   string `json:"returned_at"`
}
