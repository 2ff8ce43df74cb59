// Package sqlite provides SQLite-backed storage for the engine checkpoints and state.
//
// This package implements file-based checkpoint storage using SQLite, perfect for
// applications requiring a lightweight, serverless database solution with ACID
// compliance and zero external dependencies.
//
// # Key Features
//
//   - Serverless, file-based database
//   - ACID transaction support
//   - Zero configuration needed
//   - Cross-platform compatibility
//   - Embedded database (no separate server process)
//   - Thread-safe operations
//   - Support for custom table names
//
// The store exposes only the CheckpointStore methods plus InitSchema and
// Close. It has no full-text search, backup, transaction or pool-tuning API,
// and it does not change the journal mode.
//
// # Basic Usage
//
//	import (
//		"context"
//		"github.com/smallnest/agentgraph/store/sqlite"
//	)
//
//	// Create a SQLite checkpoint store
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path:      "./checkpoints.db", // Database file path
//		TableName: "checkpoints",     // Optional table name
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	// NewSqliteCheckpointStore has already run InitSchema. Save a checkpoint;
//	// Metadata["execution_id"] fills the execution_id column that List and
//	// Clear filter on
//	err = store.Save(ctx, checkpoint)
//	checkpoints, err := store.List(ctx, "exec-1")
//
// # Configuration
//
// ## Database File Options
//
//	// In-memory database (volatile)
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: ":memory:",
//	})
//
//	// Temporary file database
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: "",
//	}) // Creates temporary file
//
//	// Persistent file database
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: "./data/agentgraph.db",
//	})
//
//	// With custom URI options
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: "file:./checkpoints.db?cache=shared&mode=rwc",
//	})
//
// # Table Schema
//
// InitSchema creates the table, named by TableName (default "checkpoints"),
// and an index on execution_id:
//
//	CREATE TABLE IF NOT EXISTS checkpoints (
//	    id TEXT PRIMARY KEY,
//	    execution_id TEXT NOT NULL,
//	    node_name TEXT NOT NULL,
//	    state TEXT NOT NULL,
//	    metadata TEXT,
//	    timestamp DATETIME NOT NULL,
//	    version INTEGER NOT NULL
//	);
//
// State and metadata are stored as JSON text. Save upserts on id. List
// returns an execution's checkpoints ordered by timestamp, oldest first.
// Delete of a missing id is not an error.
//
// # Error Handling
//
//	// Driver errors are wrapped with %w, so errors.As reaches them
//	if err := store.Save(ctx, checkpoint); err != nil {
//		var sqliteErr sqlite3.Error // github.com/mattn/go-sqlite3
//		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrBusy {
//			// Database is locked
//		}
//	}
//
// # Integration Examples
//
// ## With Desktop Application
//
//	// Local file database for desktop app
//	appDataDir, _ := os.UserConfigDir()
//	dbPath := filepath.Join(appDataDir, "myapp", "checkpoints.db")
//
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: dbPath,
//	})
//
//	// Ensure directory exists
//	os.MkdirAll(filepath.Dir(dbPath), 0755)
//
// ## With Web Application
//
//	// Per-user SQLite databases
//	func getUserStore(userID string) (store.CheckpointStore, error) {
//		userDir := filepath.Join("./data", "users", userID)
//		os.MkdirAll(userDir, 0755)
//
//		dbPath := filepath.Join(userDir, "checkpoints.db")
//		return sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//			Path: dbPath,
//		})
//	}
//
// ## Development and Testing
//
//	// In-memory database for tests
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: ":memory:",
//	})
//	if err != nil {
//		t.Fatal(err)
//	}
//
//	// Or use shared in-memory for multiple connections
//	store, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: "file::memory:?cache=shared",
//	})
//
// # Best Practices
//
//  1. Use WAL mode for concurrent access
//  2. Set appropriate timeouts for operations
//  3. Use transactions for multi-step operations
//  4. Close connections when done
//  5. Regularly run VACUUM and ANALYZE
//  6. Monitor database size and performance
//  7. Use prepared statements for frequent queries
//  8. Implement proper backup strategies
//  9. Handle database locking gracefully
//  10. Consider connection pooling for web applications
//
// # Security Considerations
//
//   - Set appropriate file permissions
//   - Use directory isolation for multi-tenant apps
//   - Validate inputs to prevent SQL injection
//   - Encrypt sensitive data before storage
//   - Use file system permissions for access control
//   - Consider full disk encryption for sensitive data
//   - Implement proper backup encryption
//   - Audit database access
//
// # Docker Integration
//
// Use with Docker volumes:
//
// ```yaml
// version: '3.8'
// services:
//
//	agentgraph:
//	  image: your-app
//	  volumes:
//	    - ./data:/app/data
//	  environment:
//	    - SQLITE_PATH=/app/data/checkpoints.db
//
//	backup:
//	  image: your-backup-app
//	  volumes:
//	    - ./data:/app/data:ro
//	    - ./backups:/app/backups
//
// ```
//
// # Comparison with Other Stores
//
// | Feature              | SQLite Store | Redis Store | PostgreSQL Store |
// |---------------------|--------------|-------------|------------------|
// | Performance          | Medium       | Very High   | High             |
// | Memory Usage         | Low          | High        | Low              |
// | Concurrency          | Limited      | High        | High             |
// | Persistence          | Yes          | Optional    | Yes              |
// | Scaling              | Single       | Cluster     | Cluster          |
// | Query Capabilities   | SQL          | Basic       | Advanced SQL     |
// | Setup Complexity     | None         | Low         | Medium           |
// | Best For           | Small/Medium | High-speed  | Enterprise       |
// | File Size           | Up to TB     | RAM limited  | Unlimited        |
// | Backup              | Simple copy  | Export/Import| pg_dump          |
package sqlite
