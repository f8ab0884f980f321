package database

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/backstage/services/drafts/config"
)

// Connection holds the write database and an optional read replica
type Connection struct {
	Write *gorm.DB
	Read  *gorm.DB
}

// Connect opens the write database and, when configured, the read replica.
// Without a replica reads go to the write database.
func Connect(cfg config.DatabaseConfig) (*Connection, error) {
	write, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	read := write
	if cfg.ReadOnlyDSN != "" {
		read, err = open(cfg.ReadOnlyDSN, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to read-only database")
		}
	}

	return &Connection{Write: write, Read: read}, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Close closes both connections
func (c *Connection) Close() error {
	for _, db := range []*gorm.DB{c.Write, c.Read} {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Close(); err != nil {
			return err
		}
		if c.Read == c.Write {
			break
		}
	}
	return nil
}
