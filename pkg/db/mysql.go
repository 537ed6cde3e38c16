// Package db holds the optional MySQL-backed operator account store. The
// tunnel itself never touches it; only the management API's login flow does.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vortexl2/pkg/model"
)

// Config collects the MySQL connection parameters. Zero values fall back to a
// local default instance.
type Config struct {
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// FromEnv reads the VORTEX_MYSQL_* variables, loading a .env file first when
// one sits in the working directory. VORTEX_MYSQL_DSN overrides the individual
// fields.
func FromEnv() Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	return Config{
		DSN:      os.Getenv("VORTEX_MYSQL_DSN"),
		Host:     getenv("VORTEX_MYSQL_HOST", "127.0.0.1"),
		Port:     getenv("VORTEX_MYSQL_PORT", "3306"),
		User:     getenv("VORTEX_MYSQL_USER", "root"),
		Password: os.Getenv("VORTEX_MYSQL_PASS"),
		Database: getenv("VORTEX_MYSQL_DB", "vortexl2"),
	}
}

func (c Config) dataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// serverDSN connects without selecting a database, for bootstrap.
func (c Config) serverDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/", c.User, c.Password, c.Host, c.Port)
}

// Init opens the operator store described by the VORTEX_MYSQL_* environment
// and migrates the accounts table, creating the database on first run.
func Init() (*gorm.DB, error) {
	return Open(FromEnv())
}

// Open connects with an explicit Config.
func Open(cfg Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	gdb, err := gorm.Open(mysql.Open(cfg.dataSourceName()), gcfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") || cfg.DSN != "" {
			return nil, fmt.Errorf("%w: connect mysql: %v", model.ErrStorage, err)
		}
		if cerr := createDatabase(cfg); cerr != nil {
			return nil, fmt.Errorf("%w: create database %s: %v", model.ErrStorage, cfg.Database, cerr)
		}
		gdb, err = gorm.Open(mysql.Open(cfg.dataSourceName()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("%w: connect mysql: %v", model.ErrStorage, err)
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: mysql pool: %v", model.ErrStorage, err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)

	if err := gdb.AutoMigrate(&model.Operator{}); err != nil {
		return nil, fmt.Errorf("%w: migrate operator table: %v", model.ErrStorage, err)
	}
	return gdb, nil
}

func createDatabase(cfg Config) error {
	conn, err := sql.Open("mysql", cfg.serverDSN())
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", cfg.Database))
	return err
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
