package postgres

import (
	"context"
	"fmt"
)

// schema DDL del kardex. Idempotente: se puede ejecutar en cada arranque.
const schema = `
CREATE TABLE IF NOT EXISTS branches (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY,
	sku          TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	price        NUMERIC(18,4) NOT NULL DEFAULT 0,
	unit_measure TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE SEQUENCE IF NOT EXISTS movement_seq;

CREATE TABLE IF NOT EXISTS movements (
	id              TEXT PRIMARY KEY,
	branch_code     TEXT NOT NULL REFERENCES branches(code),
	sequence        BIGINT NOT NULL UNIQUE DEFAULT nextval('movement_seq'),
	document_number TEXT NOT NULL DEFAULT '',
	direction       TEXT NOT NULL CHECK (direction IN ('IN', 'OUT')),
	reason          TEXT NOT NULL DEFAULT '',
	occurred_at     TIMESTAMPTZ NOT NULL,
	performed_by    TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT UNIQUE,
	reverses_id     TEXT UNIQUE REFERENCES movements(id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_movements_branch_seq ON movements (branch_code, sequence DESC);

CREATE TABLE IF NOT EXISTS movement_lines (
	movement_id TEXT NOT NULL REFERENCES movements(id),
	line_no     INT NOT NULL,
	product_id  TEXT NOT NULL REFERENCES products(id),
	batch_key   TEXT NOT NULL DEFAULT '',
	quantity    NUMERIC(18,4) NOT NULL CHECK (quantity > 0),
	unit_cost   NUMERIC(18,6) NOT NULL DEFAULT 0,
	unit_price  NUMERIC(18,4) NOT NULL DEFAULT 0,
	allocations JSONB NOT NULL DEFAULT '[]',
	PRIMARY KEY (movement_id, line_no)
);
CREATE INDEX IF NOT EXISTS idx_movement_lines_product ON movement_lines (product_id);

CREATE TABLE IF NOT EXISTS batches (
	branch_code        TEXT NOT NULL,
	product_id         TEXT NOT NULL,
	batch_key          TEXT NOT NULL,
	movement_id        TEXT NOT NULL REFERENCES movements(id),
	sequence           BIGINT NOT NULL,
	occurred_at        TIMESTAMPTZ NOT NULL,
	original_quantity  NUMERIC(18,4) NOT NULL,
	remaining_quantity NUMERIC(18,4) NOT NULL,
	unit_cost          NUMERIC(18,6) NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (branch_code, product_id, batch_key),
	CHECK (remaining_quantity >= 0 AND remaining_quantity <= original_quantity)
);
CREATE INDEX IF NOT EXISTS idx_batches_fifo ON batches (branch_code, product_id, occurred_at, sequence)
	WHERE remaining_quantity > 0;

CREATE TABLE IF NOT EXISTS batch_allocations (
	id          BIGSERIAL PRIMARY KEY,
	movement_id TEXT NOT NULL REFERENCES movements(id),
	line_no     INT NOT NULL,
	branch_code TEXT NOT NULL,
	product_id  TEXT NOT NULL,
	batch_key   TEXT NOT NULL,
	quantity    NUMERIC(18,4) NOT NULL,
	unit_cost   NUMERIC(18,6) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	FOREIGN KEY (branch_code, product_id, batch_key) REFERENCES batches (branch_code, product_id, batch_key)
);
CREATE INDEX IF NOT EXISTS idx_batch_allocations_batch ON batch_allocations (branch_code, product_id, batch_key);
CREATE INDEX IF NOT EXISTS idx_batch_allocations_movement ON batch_allocations (movement_id);

CREATE TABLE IF NOT EXISTS stock_snapshots (
	branch_code     TEXT NOT NULL,
	product_id      TEXT NOT NULL,
	on_hand         NUMERIC(18,4) NOT NULL DEFAULT 0,
	last_unit_cost  NUMERIC(18,6) NOT NULL DEFAULT 0,
	last_unit_price NUMERIC(18,4) NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (branch_code, product_id)
);

CREATE TABLE IF NOT EXISTS document_sequences (
	branch_code TEXT NOT NULL,
	prefix      TEXT NOT NULL,
	last_value  BIGINT NOT NULL,
	PRIMARY KEY (branch_code, prefix)
);
`

// Migrate crea las tablas del kardex si no existen.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
