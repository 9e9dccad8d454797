package fixtures

import (
	"strconv"

	"github.com/google/uuid"
	"syreclabs.com/go/faker"
)

// Address is the nested address of a Customer.
type Address struct {
	Street string `json:"Street,omitempty"`
	City   string `json:"City,omitempty"`
}

// Customer is a snapshot valid for CustomerSchemaV1 and, with Status set, CustomerSchemaV2.
type Customer struct {
	ID      string   `json:"Id"`
	Name    string   `json:"Name"`
	Email   string   `json:"Email"`
	Age     int      `json:"Age,omitempty"`
	Status  string   `json:"Status,omitempty"`
	Address *Address `json:"Address,omitempty"`
}

// OrderItem is one line item of an Order.
type OrderItem struct {
	Sku      string `json:"Sku"`
	Quantity int    `json:"Quantity"`
}

// Order is a snapshot valid for OrderSchemaV1.
type Order struct {
	ID         string      `json:"Id"`
	CustomerID string      `json:"CustomerId"`
	Status     string      `json:"Status,omitempty"`
	Total      float64     `json:"Total"`
	Items      []OrderItem `json:"Items"`
}

// Product is a snapshot valid for ProductSchemaV1.
type Product struct {
	ID    string  `json:"Id"`
	Title string  `json:"Title"`
	Price float64 `json:"Price"`
}

// FakeCustomer returns a random Customer without Status and Address.
func FakeCustomer() Customer {
	return Customer{
		ID:    uuid.NewString(),
		Name:  faker.Name().Name(),
		Email: "user" + strconv.Itoa(faker.RandomInt(1, 1_000_000)) + "@example.com",
		Age:   faker.RandomInt(18, 90),
	}
}

// FakeActiveCustomer returns a random Customer valid for CustomerSchemaV2.
func FakeActiveCustomer(city string) Customer {
	customer := FakeCustomer()
	customer.Status = "Active"
	customer.Address = &Address{Street: faker.Lorem().Word() + " Street", City: city}

	return customer
}

// FakeOrder returns a random Order of customerID with one line item per sku.
func FakeOrder(customerID string, skus ...string) Order {
	order := Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     "Placed",
		Items:      make([]OrderItem, 0, len(skus)),
	}

	for _, sku := range skus {
		quantity := faker.RandomInt(1, 5)
		order.Items = append(order.Items, OrderItem{Sku: sku, Quantity: quantity})
		order.Total += float64(quantity) * 10
	}

	return order
}

// FakeProduct returns a random Product.
func FakeProduct() Product {
	return Product{
		ID:    uuid.NewString(),
		Title: faker.Lorem().Sentence(3),
		Price: float64(faker.RandomInt(1, 500)),
	}
}
