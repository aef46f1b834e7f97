package rewrite

import "regexp"

// identifierPairs is ordered: longer names precede names they contain.
var identifierPairs = [][2]string{
	{"Order_Details", "order_details"},
	{"OrderDetails", "order_details"},
	{"Products", "products"},
	{"Orders", "orders"},
	{"Customers", "customers"},
	{"Suppliers", "suppliers"},
	{"Categories", "categories"},
	{"Employees", "employees"},
	{"Shippers", "shippers"},

	{"ProductID", "product_id"},
	{"ProductName", "product_name"},
	{"SupplierID", "supplier_id"},
	{"CategoryID", "category_id"},
	{"QuantityPerUnit", "quantity_per_unit"},
	{"UnitPrice", "unit_price"},
	{"Unitprice", "unit_price"},
	{"UnitsInStock", "units_in_stock"},
	{"UnitsOnOrder", "units_on_order"},
	{"ReorderLevel", "reorder_level"},
	{"Discontinued", "discontinued"},
	{"OrderID", "order_id"},
	{"CustomerID", "customer_id"},
	{"EmployeeID", "employee_id"},
	{"OrderDate", "order_date"},
	{"RequiredDate", "required_date"},
	{"ShippedDate", "shipped_date"},
	{"ShipVia", "ship_via"},
	{"Freight", "freight"},
	{"ShipName", "ship_name"},
	{"ShipAddress", "ship_address"},
	{"ShipCity", "ship_city"},
	{"ShipRegion", "ship_region"},
	{"ShipPostalCode", "ship_postal_code"},
	{"ShipCountry", "ship_country"},
	{"Quantity", "quantity"},
	{"Discount", "discount"},
	{"CompanyName", "company_name"},
	{"ContactName", "contact_name"},
	{"ContactTitle", "contact_title"},
	{"Address", "address"},
	{"City", "city"},
	{"Region", "region"},
	{"PostalCode", "postal_code"},
	{"Phone", "phone"},
	{"Fax", "fax"},
	{"HomePage", "home_page"},
	{"CategoryName", "category_name"},
	{"Description", "description"},
	{"Picture", "picture"},
	{"LastName", "last_name"},
	{"FirstName", "first_name"},
	{"Title", "title"},
	{"ReportsTo", "reports_to"},
	{"BirthDate", "birth_date"},
	{"HireDate", "hire_date"},
	{"HomePhone", "home_phone"},
	{"Extension", "extension"},
	{"Notes", "notes"},
	{"PhotoPath", "photo_path"},
	{"Photo", "photo"},
	{"ShipperID", "shipper_id"},

	{"RANDOM()", "random()"},
	{"Random()", "random()"},
	{"Random", "random"},
}

// Identifiers maps the Pascal-case Northwind names models tend to emit onto
// the snake_case columns the store actually has.
var Identifiers = buildIdentifiers()

func buildIdentifiers() Table {
	table := make(Table, 0, len(identifierPairs)+2)
	for _, pair := range identifierPairs {
		table = append(table, identifierRule(pair[0], pair[1]))
	}
	return append(table,
		Rule{
			Name:        "truncated units_in_stock",
			Pattern:     regexp.MustCompile(`(?i)\bunitsin(?:stock)?\b`),
			Replacement: "units_in_stock",
			Rationale:   "models drop the separators or cut the name short",
		},
		Rule{
			Name:        "unseparated product_name",
			Pattern:     regexp.MustCompile(`(?i)\bproductname\b`),
			Replacement: "product_name",
			Rationale:   "models drop the separator",
		},
	)
}

// LiteralCasing capitalizes single-word literals compared with '=': product
// names are stored title-cased. It misfires on literals that are not names.
var LiteralCasing = Table{
	{
		Name:    "capitalize equality literal",
		Pattern: regexp.MustCompile(`=\s*'([A-Za-z]+)'`),
		Func: func(match string) string {
			word := literalWord.FindStringSubmatch(match)[1]
			return "= '" + Capitalize(word) + "'"
		},
		Rationale: "proper nouns are stored with a leading capital",
	},
}

var literalWord = regexp.MustCompile(`'([A-Za-z]+)'`)
