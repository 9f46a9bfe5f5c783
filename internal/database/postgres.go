package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

var db *sql.DB

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "venue_settlement")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

var schema = `
CREATE TABLE IF NOT EXISTS accounts(
	account_id			TEXT PRIMARY KEY,
	owner_principal_id	TEXT NOT NULL,
	role				VARCHAR(10) NOT NULL DEFAULT 'OWNER',
	balance				BIGINT NOT NULL DEFAULT 0,
	available_amount	BIGINT NOT NULL DEFAULT 0,
	version				INTEGER NOT NULL DEFAULT 1,
	created_at			TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	updated_at			TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	CONSTRAINT available_within_balance CHECK (available_amount >= 0 AND available_amount <= balance)
);

CREATE TABLE IF NOT EXISTS revenue_entries(
	account_id	TEXT NOT NULL REFERENCES accounts(account_id),
	day			DATE NOT NULL,
	amount		BIGINT NOT NULL,
	PRIMARY KEY (account_id, day)
);

CREATE TABLE IF NOT EXISTS withdrawal_requests(
	id					TEXT PRIMARY KEY,
	account_id			TEXT NOT NULL REFERENCES accounts(account_id),
	description			TEXT NOT NULL,
	amount				BIGINT NOT NULL CHECK (amount > 0),
	bank_code			TEXT NOT NULL DEFAULT '',
	bank_account		TEXT NOT NULL DEFAULT '',
	status				VARCHAR(10) NOT NULL DEFAULT 'PENDING',
	payout_reference	TEXT NOT NULL DEFAULT '',
	created_at			TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	resolved_at			TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_account ON withdrawal_requests(account_id);
CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status ON withdrawal_requests(status);`

// InitDB initializes the database connection
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test connection
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("error applying schema: %w", err)
	}

	log.Println("Database connection established")
	return db, nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase initializes database with error handling
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}
