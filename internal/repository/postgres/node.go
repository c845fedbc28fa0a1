package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"nodetree/internal/domain"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/repositories"
)

// PostgresNodeRepository implements NodeRepository on a single table.
// Children are not materialized: they are queried by parent_id, ordered by
// seq, which is reassigned whenever a node changes parent so that a moved
// node sorts after its new siblings.
type PostgresNodeRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(config *RepositoryConfig) *PostgresNodeRepository {
	return &PostgresNodeRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

var _ repositories.NodeRepository = (*PostgresNodeRepository)(nil)

// AddNode inserts a node; the foreign key rejects an unknown parent
func (r *PostgresNodeRepository) AddNode(ctx context.Context, parentID *string) (*models.Node, error) {
	if parentID != nil && !isUUID(*parentID) {
		return nil, domain.NodeNotFound(*parentID)
	}

	node := &models.Node{
		ID:       uuid.New().String(),
		Children: []string{},
	}
	if parentID != nil {
		pid := *parentID
		node.ParentID = &pid
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, parent_id)
		VALUES ($1, $2)
		RETURNING created_at
	`, r.tables.Nodes)

	err := executor(ctx, r.pool).QueryRow(ctx, query, node.ID, node.ParentID).Scan(&node.CreatedAt)
	if err != nil {
		if isPgForeignKeyError(err) {
			return nil, domain.NodeNotFound(*parentID)
		}
		return nil, fmt.Errorf("create node: %w", err)
	}

	return node, nil
}

// GetNode retrieves a node and its ordered children in one statement
func (r *PostgresNodeRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return r.getNode(ctx, executor(ctx, r.pool), id)
}

// GetNodeCount returns the number of rows in the node table
func (r *PostgresNodeRepository) GetNodeCount(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.tables.Nodes)

	var count int
	if err := executor(ctx, r.pool).QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

// GetRoot returns the oldest parentless node
func (r *PostgresNodeRepository) GetRoot(ctx context.Context) (*models.Node, error) {
	query := fmt.Sprintf(`
		SELECT id
		FROM %s
		WHERE parent_id IS NULL
		ORDER BY seq ASC
		LIMIT 1
	`, r.tables.Nodes)

	db := executor(ctx, r.pool)

	var rootID string
	if err := db.QueryRow(ctx, query).Scan(&rootID); err != nil {
		if isPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: "tree has no root"}
		}
		return nil, fmt.Errorf("get root: %w", err)
	}

	return r.getNode(ctx, db, rootID)
}

// SetParent moves nodeID under parentID. The parent pointer and child order
// live in one row, so the move is a single UPDATE inside a transaction that
// also holds the row lock taken by the existence checks.
func (r *PostgresNodeRepository) SetParent(ctx context.Context, nodeID, parentID string) (*models.Node, error) {
	if !isUUID(nodeID) {
		return nil, domain.NodeNotFound(nodeID)
	}
	if !isUUID(parentID) {
		return nil, domain.NodeNotFound(parentID)
	}

	var node *models.Node
	err := r.inTx(ctx, func(db querier) error {
		var currentParent *string
		lockQuery := fmt.Sprintf(`SELECT parent_id FROM %s WHERE id = $1 FOR UPDATE`, r.tables.Nodes)
		if err := db.QueryRow(ctx, lockQuery, nodeID).Scan(&currentParent); err != nil {
			if isPgNoRowsError(err) {
				return domain.NodeNotFound(nodeID)
			}
			return fmt.Errorf("lock node: %w", err)
		}

		var parentExists bool
		existsQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, r.tables.Nodes)
		if err := db.QueryRow(ctx, existsQuery, parentID).Scan(&parentExists); err != nil {
			return fmt.Errorf("check parent: %w", err)
		}
		if !parentExists {
			return domain.NodeNotFound(parentID)
		}

		if currentParent == nil {
			return domain.InvalidStructure("node %s is the root and cannot be moved", nodeID)
		}

		if *currentParent != parentID {
			updateQuery := fmt.Sprintf(`
				UPDATE %s
				SET parent_id = $2, seq = nextval(pg_get_serial_sequence('%s', 'seq'))
				WHERE id = $1
			`, r.tables.Nodes, r.tables.Nodes)
			if _, err := db.Exec(ctx, updateQuery, nodeID, parentID); err != nil {
				return fmt.Errorf("update parent: %w", err)
			}
		}

		var err error
		node, err = r.getNode(ctx, db, nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

func (r *PostgresNodeRepository) getNode(ctx context.Context, db querier, id string) (*models.Node, error) {
	if !isUUID(id) {
		return nil, domain.NodeNotFound(id)
	}

	query := fmt.Sprintf(`
		SELECT n.id, n.parent_id, n.created_at,
			ARRAY(
				SELECT c.id::text
				FROM %s c
				WHERE c.parent_id = n.id
				ORDER BY c.seq ASC
			)
		FROM %s n
		WHERE n.id = $1
	`, r.tables.Nodes, r.tables.Nodes)

	var node models.Node
	err := db.QueryRow(ctx, query, id).Scan(
		&node.ID,
		&node.ParentID,
		&node.CreatedAt,
		&node.Children,
	)
	if err != nil {
		if isPgNoRowsError(err) || isPgInvalidTextError(err) {
			return nil, domain.NodeNotFound(id)
		}
		return nil, fmt.Errorf("get node: %w", err)
	}

	if node.Children == nil {
		node.Children = []string{}
	}
	return &node, nil
}

// inTx joins the transaction in ctx, or runs fn in a short transaction of its own
func (r *PostgresNodeRepository) inTx(ctx context.Context, fn func(db querier) error) error {
	if tx := treeTx(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// No-op after commit
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUUID reports whether id can be a key in the UUID column
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
