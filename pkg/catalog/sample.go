package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	// Pure-Go SQLite driver backing the sample database.
	_ "modernc.org/sqlite"
)

// SampleDatabaseID is the registry key for the built-in sample database.
const SampleDatabaseID = "sample"

var sampleSchema = []string{
	`CREATE TABLE customers (
		customer_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT
	)`,
	`CREATE TABLE products (
		product_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		price REAL NOT NULL,
		category TEXT,
		stock INTEGER DEFAULT 0
	)`,
	`CREATE TABLE orders (
		order_id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		order_date TEXT NOT NULL,
		total_amount REAL NOT NULL,
		status TEXT DEFAULT 'pending',
		FOREIGN KEY (customer_id) REFERENCES customers(customer_id)
	)`,
	`CREATE TABLE order_items (
		item_id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price REAL NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(order_id),
		FOREIGN KEY (product_id) REFERENCES products(product_id)
	)`,
}

var sampleSeed = []string{
	`INSERT INTO customers (customer_id, name, email, phone, address) VALUES
		(1, 'John Smith', 'john@example.com', '555-1234', '123 Main St'),
		(2, 'Jane Doe', 'jane@example.com', '555-5678', '456 Oak Ave'),
		(3, 'Bob Johnson', 'bob@example.com', '555-9012', '789 Pine Rd'),
		(4, 'Alice Brown', 'alice@example.com', '555-3456', '321 Elm St'),
		(5, 'Charlie Davis', 'charlie@example.com', '555-7890', '654 Maple Dr')`,
	`INSERT INTO products (product_id, name, description, price, category, stock) VALUES
		(1, 'Laptop', 'High-performance laptop', 999.99, 'Electronics', 10),
		(2, 'Smartphone', 'Latest smartphone model', 699.99, 'Electronics', 15),
		(3, 'Headphones', 'Noise-cancelling headphones', 149.99, 'Audio', 20),
		(4, 'Tablet', '10-inch tablet', 399.99, 'Electronics', 8),
		(5, 'Smartwatch', 'Fitness tracking smartwatch', 249.99, 'Wearables', 12),
		(6, 'Wireless Mouse', 'Ergonomic wireless mouse', 29.99, 'Accessories', 30),
		(7, 'Keyboard', 'Mechanical keyboard', 79.99, 'Accessories', 25),
		(8, 'Monitor', '27-inch 4K monitor', 349.99, 'Electronics', 5)`,
	`INSERT INTO orders (order_id, customer_id, order_date, total_amount, status) VALUES
		(1, 1, '2023-01-15', 1149.98, 'completed'),
		(2, 2, '2023-01-20', 699.99, 'completed'),
		(3, 3, '2023-02-05', 429.98, 'shipped'),
		(4, 1, '2023-02-10', 249.99, 'pending'),
		(5, 4, '2023-02-15', 1099.97, 'shipped'),
		(6, 5, '2023-03-01', 349.99, 'pending')`,
	`INSERT INTO order_items (item_id, order_id, product_id, quantity, unit_price) VALUES
		(1, 1, 1, 1, 999.99),
		(2, 1, 3, 1, 149.99),
		(3, 2, 2, 1, 699.99),
		(4, 3, 6, 1, 29.99),
		(5, 3, 7, 5, 79.99),
		(6, 4, 5, 1, 249.99),
		(7, 5, 4, 1, 399.99),
		(8, 5, 2, 1, 699.99),
		(9, 6, 8, 1, 349.99)`,
}

// OpenSampleDatabase opens (and on first use creates) the built-in sample
// database at path. An empty path opens an in-memory database, which tests
// use.
func OpenSampleDatabase(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	dsn := ":memory:"
	exists := false
	if path != "" {
		dsn = path
		if _, err := os.Stat(path); err == nil {
			exists = true
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sample database: %w", err)
	}
	if dsn == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		boundPool(db)
	}

	if exists {
		return db, nil
	}

	logger.Info("seeding sample database", zap.String("path", dsn))
	for _, stmt := range append(append([]string{}, sampleSchema...), sampleSeed...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed sample database: %w", err)
		}
	}

	return db, nil
}
