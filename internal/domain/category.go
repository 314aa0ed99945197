package domain

import "fmt"

// Category is a merchant category. The set is closed: every Category
// declared here must have a profile in the risk table.
type Category string

const (
	CategoryGrocery            Category = "grocery"
	CategoryGasStation         Category = "gas_station"
	CategoryRestaurant         Category = "restaurant"
	CategoryRetail             Category = "retail"
	CategoryElectronics        Category = "electronics"
	CategoryOnlineShopping     Category = "online_shopping"
	CategoryTravel             Category = "travel"
	CategoryEntertainment      Category = "entertainment"
	CategoryHealthcare         Category = "healthcare"
	CategoryUtilities          Category = "utilities"
	CategoryLuxuryGoods        Category = "luxury_goods"
	CategoryCryptocurrency     Category = "cryptocurrency"
	CategoryMoneyTransfer      Category = "money_transfer"
	CategoryAdultEntertainment Category = "adult_entertainment"
	CategoryGambling           Category = "gambling"
)

var allCategories = []Category{
	CategoryGrocery,
	CategoryGasStation,
	CategoryRestaurant,
	CategoryRetail,
	CategoryElectronics,
	CategoryOnlineShopping,
	CategoryTravel,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryUtilities,
	CategoryLuxuryGoods,
	CategoryCryptocurrency,
	CategoryMoneyTransfer,
	CategoryAdultEntertainment,
	CategoryGambling,
}

// AllCategories returns every merchant category in declaration order.
// The order is stable so seeded draws over it are reproducible.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
