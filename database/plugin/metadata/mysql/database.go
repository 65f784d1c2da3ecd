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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/bequest/database/models"
	"github.com/blinklabs-io/bequest/database/types"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 3306
	DefaultUser           = "root"
	DefaultDatabase       = "bequest"
	DefaultTimeZone       = "UTC"
	DefaultMaxConnections = 16
)

// mysqlTxn wraps a gorm transaction and implements types.Txn
type mysqlTxn struct {
	store    *MetadataStoreMysql
	db       *gorm.DB
	beginErr error
	finished bool
}

func (t *mysqlTxn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Commit().Error
}

func (t *mysqlTxn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Rollback().Error
}

// MetadataStoreMysql keeps the event journal and submission history in a
// MySQL database
type MetadataStoreMysql struct {
	promRegistry    prometheus.Registerer
	eventsJournaled prometheus.Counter
	db              *gorm.DB
	logger          *slog.Logger
	host            string
	user            string
	password        string
	database        string
	tlsMode         string
	timeZone        string
	dsn             string
	port            uint
	maxConnections  int
}

// NewWithOptions creates a MySQL metadata store. The connection is opened by
// Start.
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	d := &MetadataStoreMysql{
		host:           DefaultHost,
		port:           DefaultPort,
		user:           DefaultUser,
		database:       DefaultDatabase,
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
		return nil, fmt.Errorf("invalid mysql port: %d", d.port)
	}
	if d.timeZone != "" {
		if _, err := time.LoadLocation(d.timeZone); err != nil {
			return nil, fmt.Errorf("invalid mysql timezone: %w", err)
		}
	}
	return d, nil
}

// connString returns the configured DSN, or formats one from the individual
// settings
func (d *MetadataStoreMysql) connString() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.host, strconv.FormatUint(uint64(d.port), 10))
	cfg.DBName = d.database
	cfg.ParseTime = true
	if d.timeZone != "" {
		// Validated by NewWithOptions
		loc, _ := time.LoadLocation(d.timeZone)
		cfg.Loc = loc
	}
	if d.tlsMode != "" {
		cfg.TLSConfig = d.tlsMode
	}
	return cfg.FormatDSN()
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	if d.db != nil {
		return nil
	}
	metadataDb, err := gorm.Open(
		gormmysql.Open(d.connString()),
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
		"connected to mysql metadata store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the connection pool. It is a no-op if Start never succeeded.
func (d *MetadataStoreMysql) Close() error {
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
func (d *MetadataStoreMysql) DB() *gorm.DB {
	return d.db
}

// Transaction begins a new database transaction
func (d *MetadataStoreMysql) Transaction() types.Txn {
	if d.db == nil {
		return &mysqlTxn{store: d, beginErr: errors.New("store not started")}
	}
	db := d.db.Begin()
	if db.Error != nil {
		d.logger.Error(
			"failed to begin transaction",
			"component", "database",
			"error", db.Error,
		)
		return &mysqlTxn{store: d, beginErr: db.Error}
	}
	return &mysqlTxn{store: d, db: db}
}

// resolveDB returns the gorm handle for a transaction, or the base handle
// when txn is nil
func (d *MetadataStoreMysql) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if d.db == nil {
		return nil, errors.New("store not started")
	}
	if txn == nil {
		return d.db, nil
	}
	mTxn, ok := txn.(*mysqlTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if mTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if mTxn.beginErr != nil {
		return nil, mTxn.beginErr
	}
	if mTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	return mTxn.db, nil
}
