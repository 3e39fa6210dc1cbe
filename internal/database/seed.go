package database

const OrderStatusPaid = "paid"

var seedProducts = []Product{
	{
		Id:          1,
		Name:        "Trail Runner Backpack",
		Description: "18L ventilated pack with hydration sleeve.",
		PriceCents:  7999,
		Currency:    "usd",
	},
	{
		Id:          2,
		Name:        "Insulated Bottle",
		Description: "750ml double-wall steel bottle.",
		PriceCents:  2999,
		Currency:    "usd",
	},
	{
		Id:          3,
		Name:        "Merino Running Cap",
		Description: "Lightweight cap with a packable brim.",
		PriceCents:  3499,
		Currency:    "usd",
	},
}

func newSeedSnapshot() *Snapshot {
	products := make([]Product, len(seedProducts))
	copy(products, seedProducts)

	return &Snapshot{
		Users:    []User{},
		Products: products,
		Reviews:  []Review{},
		Orders:   []Order{},
		Messages: []Message{},
	}
}
