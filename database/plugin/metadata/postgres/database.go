// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 5432
	DefaultUser           = "postgres"
	DefaultDatabase       = "bequest"
	DefaultSSLMode        = "disable"
	DefaultTimeZone       = "UTC"
	DefaultMaxConnections = 16
)

// postgresTxn wraps a gorm transaction and implements types.Txn
type postgresTxn struct {
	store    *MetadataStorePostgres
	db       *gorm.DB
	beginErr error
	finished bool
}

func (t *postgresTxn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Commit().Error
}

func (t *postgresTxn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Rollback().Error
}

// MetadataStorePostgres keeps the event journal and submission history in a
// Postgres database shared by one or more nodes
type MetadataStorePostgres struct {
	promRegistry    prometheus.Registerer
	eventsJournaled prometheus.Counter
	db              *gorm.DB
	logger          *slog.Logger
	host            string
	user            string
	password        string
	database        string
	sslMode         string
	timeZone        string
	dsn             string
	port            uint
	maxConnections  int
}

// NewWithOptions creates a Postgres metadata store. The connection is opened
// by Start.
func NewWithOptions(
	opts ...PostgresOptionFunc,
) (*MetadataStorePostgres, error) {
	d := &MetadataStorePostgres{
		host:           DefaultHost,
		port:           DefaultPort,
		user:           DefaultUser,
		database:       DefaultDatabase,
		sslMode:        DefaultSSLMode,
		timeZone:       DefaultTimeZone,
		maxConnections: DefaultMaxConnections,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.port > 65535 {
		return nil, fmt.Errorf("invalid postgres port: %d", d.port)
	}
	return d, nil
}

// connString returns the configured DSN, or builds a keyword/value
// connection string from the individual settings
func (d *MetadataStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + d.host,
		"port=" + strconv.FormatUint(uint64(d.port), 10),
		"user=" + d.user,
		"dbname=" + d.database,
		"sslmode=" + d.sslMode,
	}
	if d.password != "" {
		parts = append(parts, "password="+d.password)
	}
	if d.timeZone != "" {
		parts = append(parts, "TimeZone="+d.timeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	if d.db != nil {
		return nil
	}
	metadataDb, err := gorm.Open(
		postgres.Open(d.connString()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	d.db = metadataDb
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	sqlDb.SetMaxOpenConns(d.maxConnections)
	sqlDb.SetMaxIdleConns(d.maxConnections)
	sqlDb.SetConnMaxLifetime(time.Hour)
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if d.promRegistry != nil {
		d.registerMetrics()
	}
	for _, model := range models.MigrateModels {
		d.logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := d.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the connection pool. It is a no-op if Start never succeeded.
func (d *MetadataStorePostgres) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDb, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	d.db = nil
	return sqlDb.Close()
}

// DB returns the underlying GORM database handle
func (d *MetadataStorePostgres) DB() *gorm.DB {
	return d.db
}

// Transaction begins a new database transaction
func (d *MetadataStorePostgres) Transaction() types.Txn {
	if d.db == nil {
		return &postgresTxn{store: d, beginErr: errors.New("store not started")}
	}
	db := d.db.Begin()
	if db.Error != nil {
		d.logger.Error(
			"failed to begin transaction",
			"component", "database",
			"error", db.Error,
		)
		return &postgresTxn{store: d, beginErr: db.Error}
	}
	return &postgresTxn{store: d, db: db}
}

// resolveDB returns the gorm handle for a transaction, or the base handle
// when txn is nil
func (d *MetadataStorePostgres) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if d.db == nil {
		return nil, errors.New("store not started")
	}
	if txn == nil {
		return d.db, nil
	}
	pTxn, ok := txn.(*postgresTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if pTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if pTxn.beginErr != nil {
		return nil, pTxn.beginErr
	}
	if pTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	return pTxn.db, nil
}
