package data

import (
	"path/filepath"
	"strings"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/glebarez/sqlite"
	"github.com/google/wire"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/system"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(SetupDB)

// SetupDB 初始化数据存储
func SetupDB(c *conf.Bootstrap) (*gorm.DB, error) {
	cfg := c.Data.Database
	dial, isSQLite := getDialector(cfg.Dsn)
	if isSQLite {
		cfg.MaxIdleConns = 1
		cfg.MaxOpenConns = 1
	}
	db, err := orm.New(dial, orm.Config{
		MaxIdleConns:    int(cfg.MaxIdleConns),
		MaxOpenConns:    int(cfg.MaxOpenConns),
		ConnMaxLifetime: cfg.ConnMaxLifetime.Duration(),
		SlowThreshold:   cfg.SlowThreshold.Duration(),
	})
	return db, err
}

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

// getDialector 返回 dial 和 是否 sqlite
func getDialector(dsn string) (gorm.Dialector, bool) {
	driver, dsn := parseDSN(dsn, system.Getwd())
	switch driver {
	case driverPostgres:
		return postgres.New(postgres.Config{
			DriverName: "pgx",
			DSN:        dsn,
		}), false
	case driverMySQL:
		return mysql.Open(dsn), false
	default:
		return sqlite.Open(dsn), true
	}
}

// parseDSN 识别驱动并整理连接串
// postgres:// 与 postgresql:// 原样交给 pgx；mysql:// 去掉前缀后为 go-sql-driver 格式
// 其余视为 sqlite 文件，相对路径基于 wd
func parseDSN(dsn, wd string) (driver, out string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return driverPostgres, dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return driverMySQL, strings.TrimPrefix(dsn, "mysql://")
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) {
		return driverSQLite, dsn
	}
	return driverSQLite, filepath.Join(wd, dsn)
}
