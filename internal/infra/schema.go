package infra

// schemaSteps is the complete DDL of the engine. Every step is idempotent so the
// list can run on each start-up and from `tracectl migrate`.
//
// Quantity bounds and identifier uniqueness are enforced here as well as in the
// services; the database is the last line against a buggy writer.
var schemaSteps = []struct{ descr, sql string }{
	{"lots table", `
CREATE TABLE IF NOT EXISTS lots (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id   UUID           NOT NULL,
    plant_id          UUID,
    lot_number        VARCHAR(100)   NOT NULL,
    material_id       UUID           NOT NULL,
    initial_quantity  NUMERIC(18,6)  NOT NULL,
    current_quantity  NUMERIC(18,6)  NOT NULL,
    reserved_quantity NUMERIC(18,6)  NOT NULL DEFAULT 0,
    unit_of_measure   VARCHAR(20)    NOT NULL,
    source_type       VARCHAR(20)    NOT NULL,
    supplier_id       UUID,
    production_date   TIMESTAMPTZ,
    received_date     TIMESTAMPTZ,
    expiry_date       TIMESTAMPTZ,
    retest_date       TIMESTAMPTZ,
    quality_status    VARCHAR(20)    NOT NULL DEFAULT 'PENDING',
    location          VARCHAR(100)   NOT NULL DEFAULT '',
    active            BOOLEAN        NOT NULL DEFAULT TRUE,
    version           INTEGER        NOT NULL DEFAULT 1,
    depleted_at       TIMESTAMPTZ,
    created_at        TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    CONSTRAINT idx_lots_org_number UNIQUE (organization_id, lot_number),
    CONSTRAINT chk_lots_initial_positive CHECK (initial_quantity > 0),
    CONSTRAINT chk_lots_quantity_bounds CHECK (
        reserved_quantity >= 0
        AND reserved_quantity <= current_quantity
        AND current_quantity <= initial_quantity)
)`},
	{"lots material index", `CREATE INDEX IF NOT EXISTS idx_lots_material ON lots (organization_id, material_id)`},

	{"serials table", `
CREATE TABLE IF NOT EXISTS serials (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id     UUID          NOT NULL,
    plant_id            UUID,
    serial_number       VARCHAR(100)  NOT NULL,
    material_id         UUID          NOT NULL,
    lot_id              UUID REFERENCES lots(id),
    production_order_id UUID,
    status              VARCHAR(20)   NOT NULL DEFAULT 'IN_STOCK',
    quality_status      VARCHAR(20)   NOT NULL DEFAULT 'PENDING',
    location            VARCHAR(100)  NOT NULL DEFAULT '',
    customer_id         UUID,
    shipment_id         UUID,
    shipped_date        TIMESTAMPTZ,
    installed_date      TIMESTAMPTZ,
    warranty_expiry     TIMESTAMPTZ,
    active              BOOLEAN       NOT NULL DEFAULT TRUE,
    version             INTEGER       NOT NULL DEFAULT 1,
    created_at          TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    CONSTRAINT idx_serials_org_number UNIQUE (organization_id, serial_number),
    CONSTRAINT chk_serials_shipped_customer CHECK (status <> 'SHIPPED' OR customer_id IS NOT NULL)
)`},
	{"serials customer index", `CREATE INDEX IF NOT EXISTS idx_serials_customer ON serials (organization_id, customer_id) WHERE customer_id IS NOT NULL`},
	{"serials lot index", `CREATE INDEX IF NOT EXISTS idx_serials_lot ON serials (lot_id) WHERE lot_id IS NOT NULL`},

	{"traceability_links table", `
CREATE TABLE IF NOT EXISTS traceability_links (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id     UUID          NOT NULL,
    parent_type         VARCHAR(10)   NOT NULL,
    parent_lot_id       UUID REFERENCES lots(id),
    parent_serial_id    UUID REFERENCES serials(id),
    child_type          VARCHAR(10)   NOT NULL,
    child_lot_id        UUID REFERENCES lots(id),
    child_serial_id     UUID REFERENCES serials(id),
    relationship_type   VARCHAR(20)   NOT NULL,
    quantity_used       NUMERIC(18,6),
    unit_of_measure     VARCHAR(20)   NOT NULL DEFAULT '',
    production_order_id UUID,
    operation_sequence  INTEGER,
    linked_at           TIMESTAMPTZ   NOT NULL,
    metadata            JSONB,
    corrects_link_id    UUID REFERENCES traceability_links(id),
    created_by          UUID,
    created_at          TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_links_parent_tag CHECK (
        (parent_type = 'LOT' AND parent_lot_id IS NOT NULL AND parent_serial_id IS NULL)
        OR (parent_type = 'SERIAL' AND parent_serial_id IS NOT NULL AND parent_lot_id IS NULL)),
    CONSTRAINT chk_links_child_tag CHECK (
        (child_type = 'LOT' AND child_lot_id IS NOT NULL AND child_serial_id IS NULL)
        OR (child_type = 'SERIAL' AND child_serial_id IS NOT NULL AND child_lot_id IS NULL)),
    CONSTRAINT chk_links_no_self_loop CHECK (
        COALESCE(parent_lot_id, parent_serial_id) <> COALESCE(child_lot_id, child_serial_id)),
    CONSTRAINT chk_links_quantity_positive CHECK (quantity_used IS NULL OR quantity_used > 0)
)`},
	{"links parent lot index", `CREATE INDEX IF NOT EXISTS idx_links_parent_lot ON traceability_links (organization_id, parent_lot_id) WHERE parent_lot_id IS NOT NULL`},
	{"links parent serial index", `CREATE INDEX IF NOT EXISTS idx_links_parent_serial ON traceability_links (organization_id, parent_serial_id) WHERE parent_serial_id IS NOT NULL`},
	{"links child lot index", `CREATE INDEX IF NOT EXISTS idx_links_child_lot ON traceability_links (organization_id, child_lot_id) WHERE child_lot_id IS NOT NULL`},
	{"links child serial index", `CREATE INDEX IF NOT EXISTS idx_links_child_serial ON traceability_links (organization_id, child_serial_id) WHERE child_serial_id IS NOT NULL`},
	{"links production order index", `CREATE INDEX IF NOT EXISTS idx_links_production_order ON traceability_links (production_order_id) WHERE production_order_id IS NOT NULL`},

	{"genealogy_records table", `
CREATE TABLE IF NOT EXISTS genealogy_records (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sequence            BIGSERIAL     NOT NULL,
    organization_id     UUID          NOT NULL,
    entity_type         VARCHAR(10)   NOT NULL,
    entity_id           UUID          NOT NULL,
    entity_identifier   VARCHAR(100)  NOT NULL,
    operation_type      VARCHAR(20)   NOT NULL,
    operation_timestamp TIMESTAMPTZ   NOT NULL,
    production_order_id UUID,
    reference_id        VARCHAR(100),
    quantity_before     NUMERIC(18,6),
    quantity_after      NUMERIC(18,6),
    reserved_before     NUMERIC(18,6),
    reserved_after      NUMERIC(18,6),
    status_before       VARCHAR(20),
    status_after        VARCHAR(20),
    location_before     VARCHAR(100),
    location_after      VARCHAR(100),
    metadata            JSONB,
    performed_by        UUID,
    created_at          TIMESTAMPTZ   NOT NULL DEFAULT NOW()
)`},
	{"genealogy entity index", `
CREATE INDEX IF NOT EXISTS idx_genealogy_entity
    ON genealogy_records (organization_id, entity_type, entity_id, operation_timestamp, sequence)`},
	{"genealogy shipped index", `
CREATE INDEX IF NOT EXISTS idx_genealogy_shipped
    ON genealogy_records (organization_id, entity_id) WHERE operation_type = 'shipped'`},

	// Links and genealogy records have no update or delete path in the
	// application; the trigger makes that true for every other client too.
	{"append-only trigger function", `
CREATE OR REPLACE FUNCTION reject_append_only_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END
$$ LANGUAGE plpgsql`},
	{"genealogy append-only trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_genealogy_append_only') THEN
    CREATE TRIGGER trg_genealogy_append_only
        BEFORE UPDATE OR DELETE ON genealogy_records
        FOR EACH ROW EXECUTE FUNCTION reject_append_only_mutation();
  END IF;
END $$`},
	{"links append-only trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_links_append_only') THEN
    CREATE TRIGGER trg_links_append_only
        BEFORE UPDATE OR DELETE ON traceability_links
        FOR EACH ROW EXECUTE FUNCTION reject_append_only_mutation();
  END IF;
END $$`},
}
