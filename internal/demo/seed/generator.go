package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Order is one row of the demo orders table.
type Order struct {
	OrderID    int64     `parquet:"order_id"`
	OrderDate  time.Time `parquet:"order_date"`
	CustomerID string    `parquet:"customer_id"`
	Region     string    `parquet:"region"`
	Product    string    `parquet:"product"`
	Channel    string    `parquet:"channel"`
	Quantity   int64     `parquet:"quantity"`
	UnitPrice  float64   `parquet:"unit_price"`
	Revenue    float64   `parquet:"revenue"`
}

var (
	regions  = []string{"north", "south", "east", "west"}
	channels = []string{"web", "store", "partner"}
	products = []struct {
		name  string
		price float64
	}{
		{"notebook", 4.5},
		{"pen", 1.2},
		{"backpack", 39.0},
		{"lamp", 24.9},
		{"monitor", 189.0},
	}
)

type Generator struct {
	rnd       *rand.Rand
	customers int
	start     time.Time
	days      int
	sequence  int64
}

// NewGenerator produces orders spread over days calendar days ending the day
// before end. The same seed yields the same orders.
func NewGenerator(seed int64, customers, days int, end time.Time) *Generator {
	if customers <= 0 {
		customers = 1
	}
	if days <= 0 {
		days = 1
	}
	end = end.UTC().Truncate(24 * time.Hour)
	return &Generator{
		rnd:       rand.New(rand.NewSource(seed)),
		customers: customers,
		start:     end.AddDate(0, 0, -days),
		days:      days,
	}
}

func (g *Generator) NextOrder() Order {
	g.sequence++
	product := products[g.rnd.Intn(len(products))]
	quantity := int64(1 + g.rnd.Intn(g.quantityCeiling(product.price)))
	price := round2(product.price * (0.9 + g.rnd.Float64()*0.2))

	return Order{
		OrderID:    g.sequence,
		OrderDate:  g.start.AddDate(0, 0, g.rnd.Intn(g.days)),
		CustomerID: fmt.Sprintf("cust-%04d", g.rnd.Intn(g.customers)+1),
		Region:     g.pickRegion(),
		Product:    product.name,
		Channel:    pickOne(g.rnd, channels),
		Quantity:   quantity,
		UnitPrice:  price,
		Revenue:    round2(price * float64(quantity)),
	}
}

func (g *Generator) Orders(n int) []Order {
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, g.NextOrder())
	}
	return orders
}

// pickRegion skews volume towards north so stacked charts are not flat.
func (g *Generator) pickRegion() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 40:
		return regions[0]
	case p < 65:
		return regions[1]
	case p < 85:
		return regions[2]
	default:
		return regions[3]
	}
}

func (g *Generator) quantityCeiling(price float64) int {
	if price > 100 {
		return 2
	}
	if price > 20 {
		return 4
	}
	return 12
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
