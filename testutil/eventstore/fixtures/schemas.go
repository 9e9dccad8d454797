package fixtures

const (
	EntityTypeCustomer = "Customer"
	EntityTypeOrder    = "Order"
	EntityTypeProduct  = "Product"
)

// CustomerSchemaV1 flags Id, Name and Email as metadata.
const CustomerSchemaV1 = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"Id": {"type": "string", "x-metadata": true},
		"Name": {"type": "string", "minLength": 1, "x-metadata": true},
		"Email": {"type": "string", "format": "email", "x-metadata": true},
		"Age": {"type": "integer", "minimum": 0}
	},
	"required": ["Id", "Name", "Email"]
}`

// CustomerSchemaV2 adds a Status metadata field and a nested Address whose City is metadata.
const CustomerSchemaV2 = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"Id": {"type": "string", "x-metadata": true},
		"Name": {"type": "string", "minLength": 1, "x-metadata": true},
		"Email": {"type": "string", "format": "email", "x-metadata": true},
		"Age": {"type": "integer", "minimum": 0},
		"Status": {"type": "string", "enum": ["Active", "Inactive", "Blocked"], "x-metadata": true},
		"Address": {
			"type": "object",
			"properties": {
				"Street": {"type": "string"},
				"City": {"type": "string", "x-metadata": true}
			}
		}
	},
	"required": ["Id", "Name", "Email", "Status"]
}`

// OrderSchemaV1 expands the Sku of every line item into metadata rows Items[i].Sku.
const OrderSchemaV1 = `{
	"type": "object",
	"properties": {
		"Id": {"type": "string", "x-metadata": true},
		"CustomerId": {"type": "string", "x-metadata": true},
		"Status": {"type": "string", "x-metadata": true},
		"Total": {"type": "number", "minimum": 0, "x-metadata": true},
		"Items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"Sku": {"type": "string", "x-metadata": true},
					"Quantity": {"type": "integer", "minimum": 1}
				},
				"required": ["Sku", "Quantity"]
			}
		}
	},
	"required": ["Id", "CustomerId", "Items"]
}`

// ProductSchemaV1 has no metadata fields.
const ProductSchemaV1 = `{
	"type": "object",
	"properties": {
		"Id": {"type": "string"},
		"Title": {"type": "string"},
		"Price": {"type": "number"}
	},
	"required": ["Id", "Title"]
}`
