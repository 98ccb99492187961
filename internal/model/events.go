package model

// Event names emitted by the lottery contract.
const (
	EventTicketsPurchased = "TicketsPurchased"
	EventPrizeClaimed     = "PrizeClaimed"
)

// Decoded field names used by the reducers.
const (
	FieldTicketIDs   = "ticketIds"
	FieldPrizeAmount = "amount"
)
