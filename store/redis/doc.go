// Package redis provides Redis-backed storage for the engine checkpoints and state.
//
// This package implements fast, in-memory checkpoint storage using Redis, ideal for
// scenarios requiring low-latency access to checkpoints and supporting distributed
// graph executions across multiple processes or servers.
//
// # Key Features
//
//   - High-performance checkpoint storage with Redis
//   - Support for TTL (time-to-live) automatic expiration
//   - Configurable key prefixes for multi-tenancy
//   - JSON serialization of complex state objects
//   - Connection pooling from the go-redis client
//
// The store talks to a single Redis server through a *redis.Client; it has no
// cluster, Sentinel, locking or Pub/Sub support. Save and Delete send their
// commands as one pipeline, which is not a MULTI/EXEC transaction.
//
// # Basic Usage
//
//	import (
//		"context"
//		"github.com/smallnest/agentgraph/store/redis"
//	)
//
//	// Create a Redis checkpoint store
//	store := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:     "localhost:6379",
//		Password: "yourpassword",
//		DB:       0,                    // Redis database number
//		Prefix:   "agentgraph:",         // Optional key prefix
//		TTL:      24 * time.Hour,       // Optional TTL for checkpoints
//	})
//
//	// Save a checkpoint; Metadata["execution_id"] adds it to the
//	// execution's index set that List and Clear read
//	err := store.Save(ctx, checkpoint)
//	checkpoints, err := store.List(ctx, "exec-1")
//
// # Configuration
//
// ## Connection Options
//
//	// Single Redis instance
//	store := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:     "localhost:6379",
//		Password: "",
//		DB:       0,
//	})
//
//	// With authentication
//	store := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:     "redis.example.com:6379",
//		Password: "your-redis-password",
//		DB:       1,
//	})
//
// ## TTL Configuration
//
//	// Set default TTL for all checkpoints (24 hours)
//	store := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr: "localhost:6379",
//		TTL:  24 * time.Hour,
//	})
//
//	// No expiration (persistent)
//	store := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr: "localhost:6379",
//		TTL:  0,
//	})
//
// # Key Management
//
//	// Each checkpoint is one JSON string value
//	// Format: {prefix}checkpoint:{checkpoint_id}
//	// Example: "agentgraph:checkpoint:abc123"
//
//	// Each execution has a set of its checkpoint IDs
//	// Format: {prefix}execution:{execution_id}:checkpoints
//	// Example: "agentgraph:execution:xyz789:checkpoints"
//
// The TTL applies to both keys; it is refreshed on the execution set at
// every Save. List skips IDs whose checkpoint key has expired and returns
// the rest in set order, which is not sorted by timestamp. Delete loads the
// checkpoint first, so deleting a missing ID returns a not-found error.
//
// # Error Handling
//
//	// Errors from go-redis are wrapped with %w
//	if err := store.Save(ctx, checkpoint); err != nil {
//		return err
//	}
//
// # Integration Examples
//
// ## With Session Affinity
//
//	// Store checkpoints per user session
//	func getUserStore(userID string) store.CheckpointStore {
//		return redis.NewRedisCheckpointStore(redis.RedisOptions{
//			Addr:   "localhost:6379",
//			Prefix: fmt.Sprintf("user:%s:agentgraph:", userID),
//			TTL:    2 * time.Hour, // Session timeout
//		})
//	}
//
//	userStore := getUserStore("user-123")
//
// # Best Practices
//
//  1. Use meaningful key prefixes for organization
//  2. Set appropriate TTL to prevent memory bloat
//  3. Use connection pooling in production
//  4. Implement proper error handling with retries
//  5. Monitor Redis memory usage
//  6. Use Redis Cluster for high availability
//  7. Enable persistence for critical data
//  8. Use pipelining for batch operations
//  9. Consider compression for large state objects
//  10. Test failover scenarios
//
// # Security Considerations
//
//   - Enable Redis AUTH in production
//   - Use TLS/SSL for network connections
//   - Implement proper network isolation
//   - Use Redis ACLs for fine-grained access control
//   - Encrypt sensitive data before storage
//   - Disable dangerous commands (CONFIG, FLUSHDB)
//   - Set up proper firewalls
//   - Monitor for suspicious activity
//
// # Docker Integration
//
// Use with Docker Compose:
//
// ```yaml
// version: '3.8'
// services:
//
//	agentgraph:
//	  image: your-app
//	  environment:
//	    - REDIS_ADDR=redis:6379
//	    - REDIS_PASSWORD=yourpassword
//	  depends_on:
//	    - redis
//
//	redis:
//	  image: redis:7-alpine
//	  command: redis-server --requirepass yourpassword
//	  ports:
//	    - "6379:6379"
//	  volumes:
//	    - redis_data:/data
//
//	redis-commander:
//	  image: rediscommander/redis-commander:latest
//	  environment:
//	    - REDIS_HOSTS=local:redis:6379:0:yourpassword
//	  ports:
//	    - "8081:8081"
//
// volumes:
//
//	redis_data:
//
// ```
//
// # Comparison with Other Stores
//
// | Feature              | Redis Store | PostgreSQL Store | SQLite Store |
// |---------------------|-------------|------------------|-------------|
// | Performance          | Very High   | High             | Medium      |
// | Persistence          | Optional    | Yes              | Yes         |
// | Memory Usage         | High        | Low              | Low         |
// | Scaling              | Horizontal  | Vertical         | Single      |
// | Query Capabilities   | Basic       | Advanced         | Basic       |
// | Transactions        | Limited     | Full             | Full        |
// | TTL Support         | Native      | Manual           | Manual      |
// | Best For           | High-speed  | Complex queries  | Simple apps |
package redis
