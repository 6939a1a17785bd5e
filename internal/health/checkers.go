package health

import "context"

// Pinger is anything with a connection that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker verifies the task store connection.
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string     { return "database" }
func (c *DatabaseChecker) IsCritical() bool { return true }

func (c *DatabaseChecker) Check(ctx context.Context) error {
	return c.db.Ping(ctx)
}
