package domain

// OrderBook is the CLOB book of a single outcome token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // highest price first
	Asks    []BookEntry // lowest price first
}

// BookEntry is one price level of the book.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid returns the highest bid and false when the bid side is empty.
func (ob OrderBook) BestBid() (float64, bool) {
	if len(ob.Bids) == 0 || ob.Bids[0].Price <= 0 {
		return 0, false
	}
	return ob.Bids[0].Price, true
}
